package resilience

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ovleluv/AIContract-STT/pkg/provider/stt"
	sttmock "github.com/ovleluv/AIContract-STT/pkg/provider/stt/mock"
)

func TestSTTFallback_FailoverReplaysAudio(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Provider{Err: errors.New("whisper down")}
	secondary := &sttmock.Provider{Result: &stt.Transcript{Text: "hello"}}

	fb := NewSTTFallback(primary, "whisper", FallbackConfig{})
	fb.AddFallback("openai", secondary)

	tr, err := fb.Transcribe(context.Background(), stt.Audio{
		Data:     strings.NewReader("audio-bytes"),
		Filename: "a.webm",
	}, "en")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "hello" {
		t.Errorf("Text = %q", tr.Text)
	}
	if string(primary.Calls[0].Data) != "audio-bytes" || string(secondary.Calls[0].Data) != "audio-bytes" {
		t.Errorf("each backend must receive the full audio: %q / %q", primary.Calls[0].Data, secondary.Calls[0].Data)
	}
	if secondary.Calls[0].Filename != "a.webm" || secondary.Calls[0].Language != "en" {
		t.Errorf("metadata not forwarded: %+v", secondary.Calls[0])
	}
}

func TestSTTFallback_AllFail(t *testing.T) {
	t.Parallel()

	fb := NewSTTFallback(&sttmock.Provider{Err: errors.New("down")}, "whisper", FallbackConfig{})
	_, err := fb.Transcribe(context.Background(), stt.Audio{Data: strings.NewReader("x")}, "")
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestSTTFallback_NilData(t *testing.T) {
	t.Parallel()

	fb := NewSTTFallback(&sttmock.Provider{}, "whisper", FallbackConfig{})
	if _, err := fb.Transcribe(context.Background(), stt.Audio{}, ""); err == nil {
		t.Fatal("expected error for nil data")
	}
}

func TestSTTFallback_States(t *testing.T) {
	t.Parallel()

	fb := NewSTTFallback(&sttmock.Provider{}, "whisper", FallbackConfig{})
	fb.AddFallback("openai", &sttmock.Provider{})

	states := fb.States()
	if len(states) != 2 || states["whisper"] != StateClosed || states["openai"] != StateClosed {
		t.Errorf("States = %v", states)
	}
}
