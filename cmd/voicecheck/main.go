// Command voicecheck prints how transcripts are classified and parsed, and
// optionally what the configured language model extracts for them.
//
//	voicecheck "book Jane Doe next Monday at 3pm"
//	echo "cancel John's appointment tomorrow" | voicecheck -llm
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/practice-scheduler/internal/app/bootstrap"
	appconfig "github.com/wolfman30/practice-scheduler/internal/config"
	"github.com/wolfman30/practice-scheduler/internal/voice"
	"github.com/wolfman30/practice-scheduler/pkg/logging"
)

type report struct {
	Classification voice.Classification `json:"classification"`
	Command        voice.Command        `json:"command"`
	Extraction     *voice.Extraction    `json:"extraction,omitempty"`
	ExtractError   string               `json:"extractError,omitempty"`
}

func main() {
	useLLM := flag.Bool("llm", false, "also ask the configured LLM provider to extract fields")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, using environment variables")
	}
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var extractor voice.Extractor
	if *useLLM {
		client, err := bootstrap.BuildLLMClient(ctx, cfg, logger)
		if err != nil {
			logger.Error("failed to build LLM client", "error", err)
			os.Exit(1)
		}
		if client == nil {
			logger.Error("no LLM provider configured", "provider", cfg.LLMProvider)
			os.Exit(1)
		}
		extractor = voice.NewLLMExtractor(client, int32(cfg.VoiceLLMMaxTokens), float32(cfg.VoiceLLMTemperature))
	}

	transcripts := flag.Args()
	if len(transcripts) == 0 {
		transcripts = readLines(os.Stdin)
	}
	now := time.Now().In(cfg.Location())
	for _, t := range transcripts {
		if err := check(ctx, os.Stdout, extractor, t, now); err != nil {
			logger.Error("failed to write report", "error", err)
			os.Exit(1)
		}
	}
}

func check(ctx context.Context, w io.Writer, extractor voice.Extractor, transcript string, now time.Time) error {
	rep := report{
		Classification: voice.Classify(transcript),
		Command:        voice.ParseCommand(transcript, now),
	}
	if extractor != nil {
		x, err := extractor.Extract(ctx, transcript, now)
		if err != nil {
			rep.ExtractError = err.Error()
		} else {
			rep.Extraction = x
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func readLines(r io.Reader) []string {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out
}
