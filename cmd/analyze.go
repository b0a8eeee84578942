package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/moodscan/internal/analyzer"
	"github.com/andresmejia3/moodscan/internal/audio"
	"github.com/andresmejia3/moodscan/internal/classify"
	"github.com/andresmejia3/moodscan/internal/config"
	"github.com/andresmejia3/moodscan/internal/emotion"
	"github.com/andresmejia3/moodscan/internal/report"
	"github.com/andresmejia3/moodscan/internal/transcribe"
	"github.com/andresmejia3/moodscan/internal/utils"
	"github.com/andresmejia3/moodscan/internal/video"
	"github.com/andresmejia3/moodscan/internal/worker"
)

// AnalyzeOptions holds the flags of the analyze command that are not config keys.
type AnalyzeOptions struct {
	Save        bool
	Out         string
	WorkerDebug bool
}

var analyzeOpts AnalyzeOptions

var analyzeCmd = &cobra.Command{
	Use:   "analyze <video>",
	Short: "Estimate the emotional state in a video from face, voice and speech",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runAnalyze(cmd.Context(), cmd.OutOrStdout(), args[0], analyzeOpts)
	},
}

func init() {
	analyzeCmd.Flags().Float64P("max-duration", "m", 45, "Maximum number of seconds of video to sample")
	analyzeCmd.Flags().IntP("nth-frame", "n", 1, "Run face detection on every Nth frame")
	analyzeCmd.Flags().IntP("engines", "e", 1, "Number of parallel face detector engines")
	analyzeCmd.Flags().Float64("noise-floor", emotion.DefaultNoiseFloor, "Drop emotions scoring below this value")
	analyzeCmd.Flags().String("outputs", "outputs", "Directory for --out reports")
	analyzeCmd.Flags().BoolVar(&analyzeOpts.Save, "save", false, "Store the result in PostgreSQL")
	analyzeCmd.Flags().StringVarP(&analyzeOpts.Out, "out", "o", "", "Also write a report file (json or yaml)")
	analyzeCmd.Flags().BoolVarP(&analyzeOpts.WorkerDebug, "debug-worker", "d", false, "Start the face detector with --debug")
	rootCmd.AddCommand(analyzeCmd)
}

// runAnalyze validates the input, runs the analysis and prints the result.
func runAnalyze(ctx context.Context, out io.Writer, path string, opts AnalyzeOptions) {
	if err := validateAnalyzeFlags(path, opts); err != nil {
		utils.Die("Invalid arguments", err, nil)
	}

	a, err := newAnalyzer(Cfg, Log, opts)
	if err != nil {
		utils.Die("Failed to configure analysis", err, nil)
	}

	maxDuration := Cfg.Analysis.MaxDuration
	bar := progressbar.NewOptions(estimateFrames(ctx, path, maxDuration, Cfg.Analysis.NthFrame),
		progressbar.OptionSetDescription("🎭 Analysing frames"),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
	)
	a.OnFrame = func(int) { bar.Add(1) }

	fmt.Fprintf(os.Stderr, "📼 Analysing up to %s of %s\n", fmtTime(maxDuration), path)
	fmt.Fprintf(os.Stderr, "⚙️  Spawning %d Detector Engine(s)...\n", Cfg.Analysis.Engines)

	res, err := a.Analyze(ctx, path, maxDuration)
	bar.Finish()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		if errors.Is(err, video.ErrSourceUnavailable) {
			utils.Die("Video could not be opened", err, nil)
		}
		utils.Die("Analysis aborted", err, nil)
	}

	printResult(out, res)

	if opts.Out != "" {
		format, _ := report.ParseFormat(opts.Out)
		p, err := report.Write(Cfg.Paths.Outputs, format, res)
		if err != nil {
			utils.Die("Failed to write report", err, nil)
		}
		fmt.Fprintf(os.Stderr, "📝 Report written to %s\n", p)
	}

	if opts.Save {
		if err := DB.SaveAnalysis(ctx, res); err != nil {
			utils.Die("Failed to save analysis", err, nil)
		}
		fmt.Fprintf(os.Stderr, "💾 Saved analysis %s\n", res.ID)
	}
}

// newAnalyzer builds the pipeline from configuration.
func newAnalyzer(cfg *config.Config, log *logrus.Logger, opts AnalyzeOptions) (*analyzer.Analyzer, error) {
	text, err := newTextClassifier(cfg, log)
	if err != nil {
		return nil, err
	}
	svc := cfg.Services
	return &analyzer.Analyzer{
		Opener: video.FFmpegOpener{},
		Detectors: analyzer.PythonDetectors(worker.Config{
			Python:      cfg.Worker.Python,
			Script:      cfg.Worker.Script,
			ReadTimeout: cfg.Worker.ReadTimeout,
			Debug:       opts.WorkerDebug,
		}, cfg.Analysis.Engines),
		Extractor:   audio.FFmpegExtractor{SampleRate: cfg.Audio.SampleRate, TempDir: cfg.Audio.TempDir},
		Transcriber: transcribe.NewHTTPClient(svc.Transcriber.URL, svc.Transcriber.Timeout, svc.Transcriber.Retries, log),
		Audio:       classify.NewAudioService(svc.AudioEmotion.URL, svc.AudioEmotion.Timeout, svc.AudioEmotion.Retries, log),
		Text:        text,
		Weights:     cfg.EmotionWeights(),
		NoiseFloor:  cfg.Analysis.NoiseFloor,
		NthFrame:    cfg.Analysis.NthFrame,
		ChunkLength: cfg.ChunkLength(),
		TempDir:     cfg.Audio.TempDir,
		Logger:      log,
	}, nil
}

func newTextClassifier(cfg *config.Config, log *logrus.Logger) (classify.TextClassifier, error) {
	tc := cfg.TextClassifier
	switch tc.Backend {
	case "openai":
		if tc.APIKey == "" {
			return nil, errors.New("text_classifier.backend is openai but no API key is set (text_classifier.api_key or OPENAI_API_KEY)")
		}
		return classify.NewOpenAIText(tc.APIKey, tc.BaseURL, tc.Model), nil
	case "http", "":
		s := cfg.Services.TextEmotion
		return classify.NewTextService(s.URL, s.Timeout, s.Retries, log), nil
	}
	return nil, fmt.Errorf("unknown text classifier backend %q", tc.Backend)
}

// estimateFrames returns the number of frames that will be sent to the
// detector, or -1 if the video cannot be probed.
func estimateFrames(ctx context.Context, path string, maxDuration float64, nth int) int {
	meta, err := video.Probe(ctx, path)
	if err != nil {
		return -1
	}
	total := meta.FramesWithin(maxDuration)
	if total <= 0 {
		return -1
	}
	if nth < 1 {
		nth = 1
	}
	return int(math.Ceil(float64(total) / float64(nth)))
}

// validateAnalyzeFlags ensures all CLI arguments are valid before starting heavy processes.
func validateAnalyzeFlags(path string, opts AnalyzeOptions) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input file does not exist: %w", err)
		}
		return fmt.Errorf("unable to access input file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("input path %s is a directory, expected a video file", path)
	}
	if opts.Out != "" {
		if _, err := report.ParseFormat(opts.Out); err != nil {
			return err
		}
	}
	return nil
}

// printResult renders the per-modality scores as a table, strongest combined
// emotion first.
func printResult(w io.Writer, res *emotion.Result) {
	fmt.Fprintf(w, "\n---------------------------------------------------------\n")
	fmt.Fprintf(w, "🎭 EMOTION ANALYSIS %s\n", res.ID)
	fmt.Fprintf(w, "---------------------------------------------------------\n")
	fmt.Fprintf(w, "Video:     %s\n", res.VideoPath)
	if res.VideoID != "" {
		fmt.Fprintf(w, "Video ID:  %s\n", shortID(res.VideoID))
	}
	if res.Dominant != "" {
		fmt.Fprintf(w, "Dominant:  %s (%.1f%%)\n", res.Dominant, res.Combined[res.Dominant]*100)
	} else {
		fmt.Fprintf(w, "Dominant:  none detected\n")
	}
	fmt.Fprintln(w)

	labels := rowLabels(res)
	if len(labels) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
		fmt.Fprintln(tw, "EMOTION\tFACIAL\tAUDIO\tTEXT\tCOMBINED")
		fmt.Fprintln(tw, "-------\t------\t-----\t----\t--------")
		for _, l := range labels {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", l,
				fmtScore(res.Facial, l), fmtScore(res.Audio, l), fmtScore(res.Text, l), fmtScore(res.Combined, l))
		}
		tw.Flush()
	}

	if res.Transcript != "" {
		fmt.Fprintf(w, "\n📝 Transcript: %q\n", res.Transcript)
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "⚠️  %s\n", warn)
	}
	fmt.Fprintf(w, "---------------------------------------------------------\n")
}

// rowLabels lists combined labels by rank, then any label only present in
// a single modality below the noise floor, alphabetically.
func rowLabels(res *emotion.Result) []emotion.Label {
	var labels []emotion.Label
	seen := map[emotion.Label]bool{}
	for _, s := range res.Combined.Ranked() {
		labels = append(labels, s.Label)
		seen[s.Label] = true
	}
	var rest []emotion.Label
	for _, m := range emotion.Modalities {
		for l := range res.Modality(m) {
			if !seen[l] {
				seen[l] = true
				rest = append(rest, l)
			}
		}
	}
	slices.Sort(rest)
	return append(labels, rest...)
}

func fmtScore(d emotion.Distribution, l emotion.Label) string {
	v, ok := d[l]
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.3f", v)
}

func fmtTime(seconds float64) string {
	duration := time.Duration(seconds * float64(time.Second))
	h := int(duration.Hours())
	m := int(duration.Minutes()) % 60
	s := int(duration.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// shortID trims long hashes for display.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return strings.TrimSpace(id)
}
