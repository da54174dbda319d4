package cmd

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"visionproxy/internal/config"
	"visionproxy/internal/logger"
	"visionproxy/internal/ocr"
)

var annotateCmd = &cobra.Command{
	Use:   "annotate [image-file]",
	Short: "Extract text from a local image with Google Cloud Vision",
	Long: `Send a local image through the same pipeline the /vision endpoint uses:
the file is base64-encoded, validated and forwarded once to Google Cloud
Vision with TEXT_DETECTION and DOCUMENT_TEXT_DETECTION.

By default the detected text is printed. Use --json to print the raw
Vision API response instead.

Required environment variables:
  GOOGLE_VISION_API_KEY - Vision API key`,
	Example: `  # Print the text found in receipt.png
  visionproxy annotate receipt.png

  # Save the raw Vision API response
  visionproxy annotate receipt.png --json -o response.json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnnotate,
}

func init() {
	rootCmd.AddCommand(annotateCmd)

	annotateCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	annotateCmd.Flags().Bool("json", false, "Output the raw Vision API response")
	annotateCmd.Flags().Int("timeout", 60, "Processing timeout in seconds")
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("annotate")

	outputPath, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	imagePath := args[0]

	cfg, err := requireConfig()
	if err != nil {
		return err
	}
	if !cfg.HasAPIKey() {
		log.Error().Msg("Vision API key not configured")
		return fmt.Errorf("%s is not set. Export it or add it to your .env file", config.EnvVisionAPIKey)
	}

	data, err := readImageFile(imagePath, cfg.MaxBodyBytes, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	annotator, closeFn, err := newAnnotator(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeFn(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close Vision client")
		}
	}()

	svc := ocr.NewService(annotator, ocr.ServiceConfig{
		Timeout: time.Duration(timeoutSecs) * time.Second,
		Logger:  logger.WithComponent("ocr"),
	})

	log.Info().
		Str("file", imagePath).
		Int("size", len(data)).
		Str("backend", annotator.Name()).
		Msg("Annotating image")

	startTime := time.Now()
	body, err := svc.Process(ctx, base64.StdEncoding.EncodeToString(data))
	if err != nil {
		return handleAnnotateError(err, log)
	}

	log.Info().
		Dur("duration", time.Since(startTime)).
		Int("response_bytes", len(body)).
		Msg("Annotation completed")

	output, err := formatAnnotation(body, jsonOutput)
	if err != nil {
		return err
	}
	return writeOutput(output, outputPath, log)
}

// readImageFile checks that path is a readable, non-empty regular file within limit.
func readImageFile(path string, limit int64, log zerolog.Logger) ([]byte, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().Str("file", path).Msg("Image file not found")
			return nil, fmt.Errorf("image file not found: %s", path)
		}
		return nil, fmt.Errorf("error accessing image file: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		return nil, fmt.Errorf("path is not a regular file: %s", path)
	}
	if fileInfo.Size() == 0 {
		return nil, fmt.Errorf("image file is empty: %s", path)
	}
	// base64 grows the payload by a third
	if encoded := base64.StdEncoding.EncodedLen(int(fileInfo.Size())); limit > 0 && int64(encoded) > limit {
		log.Error().
			Str("file", path).
			Int64("size", fileInfo.Size()).
			Int64("max_size", limit).
			Msg("Image exceeds maximum size limit")
		return nil, fmt.Errorf("image too large (%d bytes encoded). Maximum size is %d bytes", encoded, limit)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return data, nil
}

// handleAnnotateError provides user-friendly error messages for annotate failures.
func handleAnnotateError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Annotation failed")

	var (
		upstreamErr *ocr.UpstreamError
		providerErr *ocr.ProviderError
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("annotation timed out. Try increasing --timeout")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("annotation was canceled")
	case errors.Is(err, ocr.ErrInvalidBase64):
		return fmt.Errorf("the image could not be encoded as base64")
	case errors.As(err, &upstreamErr):
		return fmt.Errorf("Google Vision API error (status %d): %s", upstreamErr.StatusCode, upstreamErr.Body)
	case errors.As(err, &providerErr):
		return fmt.Errorf("Google Vision API rejected the image: %s", providerErr.Error())
	case errors.Is(err, ocr.ErrEmptyResponse):
		return fmt.Errorf("Google Vision API returned no results for this image")
	default:
		return fmt.Errorf("annotation failed: %w", err)
	}
}

// formatAnnotation renders the response as detected text or indented JSON.
func formatAnnotation(body []byte, jsonOutput bool) ([]byte, error) {
	if jsonOutput {
		var out bytes.Buffer
		if err := json.Indent(&out, body, "", "  "); err != nil {
			return nil, fmt.Errorf("failed to format JSON output: %w", err)
		}
		out.WriteByte('\n')
		return out.Bytes(), nil
	}

	text, err := ocr.ExtractText(body)
	if err != nil {
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}
	return []byte(text + "\n"), nil
}

func writeOutput(data []byte, outputPath string, log zerolog.Logger) error {
	if outputPath == "" {
		if _, err := os.Stdout.Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		log.Error().
			Err(err).
			Str("output_file", outputPath).
			Msg("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}

	log.Info().
		Str("output_file", outputPath).
		Int("bytes", len(data)).
		Msg("Annotation written to file")
	return nil
}
