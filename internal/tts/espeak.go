package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <espeak-ng/speak_lib.h>

int
espeak_say(const char *text, const char *lang, int volume, int rate, int pitch)
{
	if (!text || !lang)
	{ return -1; }

	if (espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) < 0)
	{ return -2; }

	espeak_VOICE specs = { .languages = lang };
	if (espeak_SetVoiceByProperties(&specs) != EE_OK)
	{ espeak_Terminate(); return -3; }

	espeak_SetParameter(espeakVOLUME, volume, 0);
	espeak_SetParameter(espeakRATE, rate, 0);
	espeak_SetParameter(espeakPITCH, pitch, 0);

	espeak_ERROR rc = espeak_Synth(text, 0, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL);
	espeak_Synchronize();
	espeak_Terminate();

	return rc == EE_OK ? 0 : -4;
}
*/
import "C"

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"unsafe"

	"sia/internal/presenter"
)

const (
	baseRate  = 175 // words per minute at rate 1
	basePitch = 50  // espeak pitch at pitch 1
)

// Espeak plays utterances through espeak-ng.
type Espeak struct {
	mu sync.Mutex
}

func New() *Espeak { return &Espeak{} }

func (e *Espeak) Speak(ctx context.Context, u presenter.Utterance) error {
	if u.Text == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ctext := C.CString(u.Text)
	defer C.free(unsafe.Pointer(ctext))
	clang := C.CString(voiceFor(u.Lang))
	defer C.free(unsafe.Pointer(clang))

	rc := C.espeak_say(ctext, clang,
		C.int(scale(u.Volume, 100, 0, 200)),
		C.int(scale(u.Rate, baseRate, 80, 450)),
		C.int(scale(u.Pitch, basePitch, 0, 99)),
	)
	if rc != 0 {
		return fmt.Errorf("espeak_say failed: %d", int(rc))
	}
	return nil
}

// voiceFor maps a BCP 47 tag to an espeak voice name.
func voiceFor(lang string) string {
	if lang == "" {
		return "en-us"
	}
	return strings.ToLower(lang)
}

func scale(v float64, unit, lo, hi int) int {
	return min(max(int(math.Round(v*float64(unit))), lo), hi)
}
