package codec

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	draptolib "github.com/five82/drapto"

	"transmute/internal/logging"
)

// encodeWithDrapto runs one encode through the drapto library. Output lands
// in outputDir as <stem>.mkv.
var encodeWithDrapto = func(ctx context.Context, inputPath, outputDir string, rep draptolib.Reporter) error {
	encoder, err := draptolib.New(draptolib.WithResponsive())
	if err != nil {
		return err
	}
	_, err = encoder.EncodeWithReporter(ctx, inputPath, outputDir, rep)
	return err
}

// Drapto encodes AV1 with the drapto library. It ignores bitrate options:
// drapto picks quality from its own content analysis.
type Drapto struct {
	Logger *slog.Logger
}

// Execute implements Backend.
func (d *Drapto) Execute(ctx context.Context, req Request) (Descriptor, error) {
	logger := d.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	rep := newDraptoReporter(req, logger)
	if err := encodeWithDrapto(ctx, req.Input.Path, req.WorkDir, rep); err != nil {
		return Descriptor{}, toolFailure(ctx, req, err)
	}
	output := rep.outputPath
	if output == "" {
		output = filepath.Join(req.WorkDir, Stem(req.Input.Path)+".mkv")
	}
	return Descriptor{Path: output, Format: req.To}, nil
}

// draptoReporter maps drapto reporter callbacks onto hop progress.
type draptoReporter struct {
	req        Request
	logger     *slog.Logger
	outputPath string
}

func newDraptoReporter(req Request, logger *slog.Logger) *draptoReporter {
	return &draptoReporter{req: req, logger: logger}
}

func (r *draptoReporter) Hardware(draptolib.HardwareSummary) {}

func (r *draptoReporter) Initialization(draptolib.InitializationSummary) {
	r.req.report(Progress{Message: "analyzing source"})
}

func (r *draptoReporter) StageProgress(s draptolib.StageProgress) {
	var eta time.Duration
	if s.ETA != nil {
		eta = *s.ETA
	}
	msg := s.Message
	if msg == "" {
		msg = s.Stage
	}
	r.req.report(Progress{Percent: float64(s.Percent), Message: msg, ETA: eta})
}

func (r *draptoReporter) CropResult(draptolib.CropSummary) {}

func (r *draptoReporter) EncodingConfig(draptolib.EncodingConfigSummary) {}

func (r *draptoReporter) EncodingStarted(uint64) {
	r.req.report(Progress{Message: "encoding"})
}

func (r *draptoReporter) EncodingProgress(s draptolib.ProgressSnapshot) {
	r.req.report(Progress{Percent: float64(s.Percent), Message: "encoding", ETA: s.ETA})
}

func (r *draptoReporter) ValidationComplete(draptolib.ValidationSummary) {}

func (r *draptoReporter) EncodingComplete(s draptolib.EncodingOutcome) {
	r.outputPath = s.OutputPath
}

func (r *draptoReporter) Warning(message string) {
	r.logger.Warn("drapto warning",
		logging.String(logging.FieldEventType, "drapto_warning"),
		logging.String("detail", message),
	)
}

func (r *draptoReporter) Error(e draptolib.ReporterError) {
	r.logger.Error("drapto error",
		logging.String(logging.FieldEventType, "drapto_error"),
		logging.String("title", e.Title),
		logging.String("detail", e.Message),
		logging.String(logging.FieldErrorHint, e.Suggestion),
	)
}

func (r *draptoReporter) OperationComplete(string) {}

func (r *draptoReporter) BatchStarted(draptolib.BatchStartInfo) {}

func (r *draptoReporter) FileProgress(draptolib.FileProgressContext) {}

func (r *draptoReporter) BatchComplete(draptolib.BatchSummary) {}

var _ draptolib.Reporter = (*draptoReporter)(nil)
