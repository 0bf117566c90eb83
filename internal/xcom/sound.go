package xcom

import (
	"os"
	"os/exec"

	"perpmonitor/internal/logger"

	"go.uber.org/zap"
)

// SoundPlayer plays a local audible alert. On headless hosts with no
// audio player available it degrades to logged-only, which still counts
// as delivered.
type SoundPlayer struct {
	soundFile string
}

// NewSoundPlayer uses soundFile when it exists; an empty or missing path
// means logged-only from the start.
func NewSoundPlayer(soundFile string) *SoundPlayer {
	if soundFile != "" {
		if _, err := os.Stat(soundFile); err != nil {
			logger.Log.Warn("Alert sound file missing, audible channel is logged-only",
				zap.String("path", soundFile),
			)
			soundFile = ""
		}
	}
	return &SoundPlayer{soundFile: soundFile}
}

var audioPlayers = []string{"aplay", "paplay", "afplay"}

// Play attempts the audible alert. Always returns true: the channel never
// fails a dispatch, it only degrades.
func (s *SoundPlayer) Play() bool {
	if s.soundFile == "" {
		logger.Log.Info("Audible alert (logged-only)")
		return true
	}

	for _, player := range audioPlayers {
		path, err := exec.LookPath(player)
		if err != nil {
			continue
		}
		if err := exec.Command(path, s.soundFile).Run(); err == nil {
			logger.Log.Info("Audible alert played", zap.String("player", player))
			return true
		}
	}

	logger.Log.Info("No audio player available, audible alert logged-only")
	return true
}
