package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/antoniostano/voicebot/internal/protocol"
)

var defaultUtterances = []string{
	"Show me bikes under 1 lakh",
	"What is the average cost of electric scooters?",
	"मुझे टेस्ट राइड बुक करनी है",
	"What is the EMI for the Activa?",
}

type perfOptions struct {
	baseURL        string
	language       string
	turns          int
	texts          []string
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	verbose        bool
}

type perfReport struct {
	Turns    int
	Failures int
	P50      time.Duration
	P95      time.Duration
	Max      time.Duration
}

func newPerfCmd() *cobra.Command {
	var (
		opts     perfOptions
		textsRaw string
	)
	cmd := &cobra.Command{
		Use:   "perf",
		Short: "Replay synthetic voice turns against a running server and report latency",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.baseURL = strings.TrimRight(strings.TrimSpace(opts.baseURL), "/")
			if opts.baseURL == "" {
				return errors.New("base-url is required")
			}
			if opts.turns <= 0 {
				return errors.New("turns must be > 0")
			}
			opts.texts = splitUtterances(textsRaw)
			if len(opts.texts) == 0 {
				opts.texts = append([]string(nil), defaultUtterances...)
			}
			report, err := runPerf(cmd.Context(), resty.New(), opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "perf: turns=%d failures=%d p50=%s p95=%s max=%s\n",
				report.Turns, report.Failures, report.P50, report.P95, report.Max)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "http://127.0.0.1:8000", "voicebot base URL")
	cmd.Flags().StringVar(&opts.language, "language", "", "language hint sent with every turn")
	cmd.Flags().IntVar(&opts.turns, "turns", 10, "number of turns to replay")
	cmd.Flags().StringVar(&textsRaw, "texts", "", "utterances separated by '|'")
	cmd.Flags().DurationVar(&opts.interTurnDelay, "inter-turn", 100*time.Millisecond, "delay between turns")
	cmd.Flags().DurationVar(&opts.turnTimeout, "turn-timeout", 20*time.Second, "timeout per turn")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", true, "print replay progress")
	return cmd
}

func splitUtterances(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, "|") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// runPerf synthesizes each utterance once through the server, then posts the
// clips as voice turns and measures round-trip latency.
func runPerf(ctx context.Context, client *resty.Client, opts perfOptions, out io.Writer) (perfReport, error) {
	client.SetBaseURL(opts.baseURL).SetTimeout(opts.turnTimeout)

	clips := make([][]byte, 0, len(opts.texts))
	for _, text := range opts.texts {
		resp, err := client.R().
			SetContext(ctx).
			SetBody(protocol.SpeakRequest{Text: text, Language: opts.language}).
			Post("/v1/text-to-speech")
		if err != nil {
			return perfReport{}, errors.Wrapf(err, "synthesize %q", text)
		}
		if resp.IsError() {
			return perfReport{}, errors.Errorf("synthesize %q: HTTP %d: %s", text, resp.StatusCode(), resp.String())
		}
		clips = append(clips, resp.Body())
	}

	var (
		report    perfReport
		latencies []float64
	)
	for i := 0; i < opts.turns; i++ {
		if err := ctx.Err(); err != nil {
			return perfReport{}, err
		}
		clip := clips[i%len(clips)]
		req := client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "audio/wav").
			SetBody(clip).
			SetResult(&protocol.VoiceResponse{})
		if opts.language != "" {
			req.SetQueryParam("language", opts.language)
		}
		start := time.Now()
		resp, err := req.Post("/v1/voice")
		elapsed := time.Since(start)
		report.Turns++
		if err != nil || resp.IsError() {
			report.Failures++
			if opts.verbose {
				fmt.Fprintf(out, "perf: turn %d/%d failed: %v\n", i+1, opts.turns, describeFailure(resp, err))
			}
			continue
		}
		latencies = append(latencies, float64(elapsed.Microseconds()))
		if opts.verbose {
			res := resp.Result().(*protocol.VoiceResponse)
			fmt.Fprintf(out, "perf: turn %d/%d intent=%s language=%s elapsed=%s\n",
				i+1, opts.turns, res.Response.Intent, res.Response.Language, elapsed.Round(time.Millisecond))
		}
		if opts.interTurnDelay > 0 && i < opts.turns-1 {
			select {
			case <-ctx.Done():
				return perfReport{}, ctx.Err()
			case <-time.After(opts.interTurnDelay):
			}
		}
	}

	sort.Float64s(latencies)
	report.P50 = microseconds(percentile(latencies, 0.50))
	report.P95 = microseconds(percentile(latencies, 0.95))
	if n := len(latencies); n > 0 {
		report.Max = microseconds(latencies[n-1])
	}
	return report, nil
}

func describeFailure(resp *resty.Response, err error) string {
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("HTTP %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
}

// percentile interpolates linearly over sorted samples.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

func microseconds(v float64) time.Duration {
	return time.Duration(v) * time.Microsecond
}
