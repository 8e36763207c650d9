package openai

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"wikiloult/app/internal/domain/identity"
	domainspeech "wikiloult/app/internal/domain/speech"
)

// SynthesizerOptions configures the title synthesizer.
type SynthesizerOptions struct {
	Client *Client
	Model  string
	Folder string
}

type synthesizer struct {
	client *Client
	logger *logrus.Logger
	model  string
	folder string
}

const defaultSpeechModel = "tts-1"

// voicePresets are indexed by the persona voice id.
var voicePresets = []string{"alloy", "ash", "coral", "echo", "fable", "onyx", "nova", "sage", "shimmer"}

// NewSynthesizer constructs a Synthesizer that writes <folder>/<page>.wav files.
func NewSynthesizer(opts SynthesizerOptions) (domainspeech.Synthesizer, error) {
	if opts.Client == nil {
		return nil, eris.New("speech client is required")
	}

	folder := strings.TrimSpace(opts.Folder)
	if folder == "" {
		return nil, eris.New("audio render folder is required")
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultSpeechModel
	}

	return &synthesizer{
		client: opts.Client,
		logger: opts.Client.logger,
		model:  model,
		folder: folder,
	}, nil
}

func (s *synthesizer) RenderTitle(ctx context.Context, pageName, title string, voice identity.Voice) error {
	name := strings.TrimSpace(pageName)
	if name == "" || strings.ContainsAny(name, `/\.`) {
		return eris.Errorf("invalid page name for audio render: %q", pageName)
	}

	text := strings.TrimSpace(title)
	if text == "" {
		return eris.New("title is required")
	}

	params := openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(s.model),
		Voice:          openai.AudioSpeechNewParamsVoice(VoicePreset(voice)),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormat("wav"),
		Speed:          openai.Float(SpeedFactor(voice)),
	}

	resp, err := s.client.speech.New(ctx, params)
	if err != nil {
		s.logError(logrus.Fields{"page": name}, err, "requesting title speech")
		return eris.Wrapf(err, "requesting speech for page %s", name)
	}
	defer resp.Body.Close()

	if err := s.writeAudio(name, resp.Body); err != nil {
		s.logError(logrus.Fields{"page": name}, err, "writing title audio")
		return err
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"page": name, "voice": VoicePreset(voice)}).Debug("rendered title audio")
	}

	return nil
}

func (s *synthesizer) writeAudio(name string, body io.Reader) error {
	if err := os.MkdirAll(s.folder, 0o755); err != nil {
		return eris.Wrapf(err, "creating audio folder %s", s.folder)
	}

	tmp, err := os.CreateTemp(s.folder, name+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "creating temporary audio file")
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return eris.Wrap(err, "streaming audio body")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "closing temporary audio file")
	}

	target := filepath.Join(s.folder, name+".wav")
	if err := os.Rename(tmp.Name(), target); err != nil {
		return eris.Wrapf(err, "moving audio file to %s", target)
	}

	return nil
}

func (s *synthesizer) logError(fields logrus.Fields, err error, message string) {
	if s.logger == nil || err == nil {
		return
	}

	entry := s.logger.WithField("error", err.Error())
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Error(message)
}

// VoicePreset maps a persona voice to one of the API's voice presets.
func VoicePreset(voice identity.Voice) string {
	id := voice.ID
	if id < 0 {
		id = -id
	}
	return voicePresets[id%len(voicePresets)]
}

// SpeedFactor converts the persona speed (90-169) into the API speed multiplier.
func SpeedFactor(voice identity.Voice) float64 {
	speed := float64(voice.Speed) / 100
	if speed < 0.25 {
		return 0.25
	}
	if speed > 4 {
		return 4
	}
	return speed
}
