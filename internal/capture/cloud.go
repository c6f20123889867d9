package capture

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const SampleRate = 16000

// Cloud transcribes through the OpenAI audio API.
type Cloud struct {
	client   openai.Client
	Language string
}

// NewCloud builds a transcriber. httpClient may be nil; extra options are
// appended after the defaults.
func NewCloud(apiKey string, httpClient *http.Client, opts ...option.RequestOption) *Cloud {
	base := []option.RequestOption{option.WithAPIKey(apiKey)}
	if httpClient != nil {
		base = append(base, option.WithHTTPClient(httpClient))
	}
	return &Cloud{
		client:   openai.NewClient(append(base, opts...)...),
		Language: "en",
	}
}

func (c *Cloud) Transcribe(ctx context.Context, pcm []float32) (string, error) {
	f, err := os.CreateTemp("", "sia-utterance-*.wav")
	if err != nil {
		return "", fmt.Errorf("temp wav: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if err := EncodeWAV(f, pcm); err != nil {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind wav: %w", err)
	}

	res, err := c.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:     openai.File(f, "utterance.wav", "audio/wav"),
		Model:    openai.AudioModelWhisper1,
		Language: openai.String(c.Language),
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return res.Text, nil
}

// EncodeWAV writes 16 kHz mono samples as 16-bit PCM.
func EncodeWAV(w io.WriteSeeker, pcm []float32) error {
	enc := wav.NewEncoder(w, SampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: SampleRate},
		Data:           make([]int, len(pcm)),
		SourceBitDepth: 16,
	}
	for i, x := range pcm {
		v := math.Max(-1, math.Min(1, float64(x)))
		buf.Data[i] = int(math.Round(v * math.MaxInt16))
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finish wav: %w", err)
	}
	return nil
}
