package daemon

import (
	"log/slog"

	"ripperbot/internal/arm"
	"ripperbot/internal/capture"
	"ripperbot/internal/config"
	"ripperbot/internal/cover"
	"ripperbot/internal/disc"
	"ripperbot/internal/display"
	"ripperbot/internal/history"
	"ripperbot/internal/vision"
)

// Pipeline is the set of collaborators built around one arm session.
type Pipeline struct {
	Hardware  *capture.SessionHardware
	Drive     *disc.CommandDrive
	Camera    *vision.CommandCamera
	Cover     *cover.Writer
	Display   *display.Line
	Processor *capture.Processor
}

// BuildPipeline assembles the per-disc processor on top of session. store may
// be nil, in which case progress is not recorded.
func BuildPipeline(cfg *config.Config, session *arm.Session, store *history.Store, logger *slog.Logger) *Pipeline {
	p := &Pipeline{
		Hardware: capture.NewSessionHardware(session, cfg, logger),
		Drive:    disc.NewDrive(cfg, logger),
		Camera:   vision.NewCamera(cfg, logger),
		Cover:    cover.NewWriter(cfg, vision.NewCircleFinder(cfg.Cover), logger),
		Display:  display.New(cfg, logger),
	}
	deps := capture.ProcessorDeps{
		Hardware: p.Hardware,
		Drive:    p.Drive,
		Camera:   p.Camera,
		Cover:    p.Cover,
		Status:   p.Display,
	}
	if store != nil {
		deps.Recorder = store
	}
	p.Processor = capture.NewProcessor(cfg, deps, logger)
	return p
}
