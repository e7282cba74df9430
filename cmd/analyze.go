package cmd

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/andresmejia3/guardian/internal/render"
	"github.com/andresmejia3/guardian/internal/types"
	"github.com/andresmejia3/guardian/internal/utils"
	"github.com/andresmejia3/guardian/internal/worker"
	"github.com/spf13/cobra"
)

var analyzeOutput string

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image_path>",
	Short: "Analyze a single image and write an annotated copy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runAnalyze(cmd.Context(), args[0], analyzeOutput)
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "Annotated image path (default: <image>.annotated.jpg)")
	addWorkerFlags(analyzeCmd.Flags())
	rootCmd.AddCommand(analyzeCmd)
}

func annotatedPath(imagePath string) string {
	ext := filepath.Ext(imagePath)
	return strings.TrimSuffix(imagePath, ext) + ".annotated.jpg"
}

func runAnalyze(ctx context.Context, imagePath, outPath string) error {
	if outPath == "" {
		outPath = annotatedPath(imagePath)
	}

	imgData, err := os.ReadFile(imagePath)
	if err != nil {
		utils.ShowError("Failed to read image file", err, nil)
		return err
	}
	img, _, err := image.Decode(bytes.NewReader(imgData))
	if err != nil {
		utils.ShowError("Unsupported image (JPEG or PNG expected)", err, nil)
		return err
	}

	fmt.Fprintln(os.Stderr, "🚀 Starting DeepFace engine...")
	w, err := worker.NewDeepFaceWorker(ctx, 0, workerConfig(opts))
	if err != nil {
		utils.ShowError("Worker startup failed", err, nil)
		return err
	}
	defer w.Close()

	fmt.Fprintln(os.Stderr, "🔍 Analyzing image...")
	if _, err := annotate(ctx, w, img, imgData, outPath, os.Stdout); err != nil {
		utils.ShowError("Analysis failed", err, w.Cmd)
		return err
	}
	fmt.Fprintf(os.Stderr, "✅ Annotated image written to %s\n", outPath)
	return nil
}

// imageAnalyzer is the part of the worker analyze needs.
type imageAnalyzer interface {
	Analyze(ctx context.Context, img []byte) (types.AnalysisResult, error)
}

// annotate analyzes one encoded image, prints the face table to out and
// writes a copy of img with the annotations drawn to outPath.
func annotate(ctx context.Context, a imageAnalyzer, img image.Image, imgData []byte, outPath string, out io.Writer) (types.AnalysisResult, error) {
	faces, err := a.Analyze(ctx, imgData)
	if err != nil {
		return nil, err
	}

	if len(faces) == 0 {
		fmt.Fprintln(out, "❌ No faces detected in the provided image.")
	} else {
		printFaces(out, faces)
	}

	canvas := render.ToRGBA(img)
	render.Draw(canvas, faces)
	if err := writeJPEG(outPath, canvas); err != nil {
		return nil, fmt.Errorf("write annotated image: %w", err)
	}
	return faces, nil
}

func printFaces(out io.Writer, faces types.AnalysisResult) {
	tw := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "#\tBOX (X,Y,W,H)\tGENDER\tEMOTION")
	fmt.Fprintln(tw, "-\t-------------\t------\t-------")
	for i, f := range faces {
		fmt.Fprintf(tw, "%d\t%d,%d,%d,%d\t%s\t%s\n", i+1, f.Region.X, f.Region.Y, f.Region.W, f.Region.H, f.Gender, f.Emotion)
	}
	tw.Flush()
}

func writeJPEG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
