package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/culitrap/go-sahi"
	"github.com/culitrap/go-sahi/detector/dnn"
	"github.com/culitrap/go-sahi/postprocess"
	"github.com/culitrap/go-sahi/render"
	"github.com/culitrap/go-sahi/store/sqlite"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	_ "golang.org/x/image/webp"
)

// supportedFormats are the image file extensions processed from a directory
var supportedFormats = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".tiff": true,
	".webp": true,
}

func main() {

	// read the .env file before flags so it can supply their defaults
	envFile := ".env"

	if v := os.Getenv("SAHI_ENV_FILE"); v != "" {
		envFile = v
	}

	env := loadEnvConfig(envFile)

	// read in cli flags
	imgFile := flag.String("i", "", "Image file to run sliced object detection on")
	inputDir := flag.String("d", "", "Directory of images to run sliced object detection on")
	modelFile := flag.String("m", env.Model, "ONNX, Caffe or TensorFlow object detection model file")
	configFile := flag.String("c", "", "Model config file for Caffe or TensorFlow models")
	format := flag.String("f", "yolov8", "Model output format [yolov8|ssd]")
	labelFile := flag.String("l", env.Labels, "Text file containing model labels")
	conf := flag.Float64("conf", env.Confidence, "Minimum confidence of detections")
	iou := flag.Float64("iou", env.IoU, "IoU threshold for merging detections across tiles")
	metric := flag.String("metric", "iou", "Match metric for merging [iou|ios]")
	sliceSize := flag.Int("slice", env.TileSize, "Width and height of each tile")
	overlap := flag.Float64("overlap", env.Overlap, "Overlap ratio between neighbouring tiles")
	workers := flag.Int("workers", env.Workers, "Number of tiles to run inference on concurrently")
	timeout := flag.Duration("timeout", env.TileTimeout, "Timeout per tile, 0 for none")
	fullPass := flag.Bool("full", false, "Also run detection on the whole image")
	agnostic := flag.Bool("agnostic", false, "Merge overlapping detections regardless of class")
	saveFile := flag.String("o", "", "Output JPG file with object detection markers (single image only)")
	grid := flag.Bool("grid", false, "Draw the tile grid on the output image")
	dbFile := flag.String("db", env.DB, "SQLite database to record runs in")
	cores := flag.String("cores", "fast", "CPU cores to pin inference to [fast|all|none]")
	platform := flag.String("p", env.Platform, "Board SoC [bcm2711|bcm2712|rk3588]")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	logCfg := zap.NewDevelopmentConfig()

	if !*debug {
		logCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	logger, err := logCfg.Build()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}

	defer logger.Sync()

	log := logger.Sugar()

	if *imgFile == "" && *inputDir == "" {
		log.Fatal("An image (-i) or input directory (-d) is required")
	}

	if *cores != "none" {
		ct, err := sahi.ParseCoreType(*cores)

		if err != nil {
			log.Fatalf("Invalid core type: %v", err)
		}

		if err := sahi.SetCPUAffinityByPlatform(*platform, ct); err != nil {
			log.Warnf("Failed to set CPU Affinity: %v", err)
		} else if mask, err := sahi.GetCPUAffinity(); err == nil {
			log.Debugf("Running on %d cores, affinity mask %b", sahi.CoreCount(mask), mask)
		}
	}

	cfg := sahi.DefaultConfig()
	cfg.TileWidth = *sliceSize
	cfg.TileHeight = *sliceSize
	cfg.OverlapRatio = *overlap
	cfg.ConfidenceFloor = *conf
	cfg.IoUThreshold = *iou
	cfg.PerTileTimeout = *timeout
	cfg.MaxConcurrentTiles = *workers
	cfg.FullImagePass = *fullPass
	cfg.ClassAgnostic = *agnostic

	if cfg.MatchMetric, err = postprocess.ParseMatchMetric(*metric); err != nil {
		log.Fatalf("Invalid match metric: %v", err)
	}

	orch, err := sahi.NewOrchestrator(cfg, sahi.WithLogger(logger))

	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	params, err := detectorParams(*format, *modelFile, *configFile, *sliceSize)

	if err != nil {
		log.Fatalf("Invalid detector parameters: %v", err)
	}

	classNames, err := sahi.LoadLabels(*labelFile)

	if err != nil {
		log.Fatalf("Error loading model labels: %v", err)
	}

	if params.Format == dnn.FormatYOLOv8 {
		params.ObjectClassNum = len(classNames)
	}

	// one network per worker as an OpenCV Net is not safe for concurrent use
	poolSize := *workers

	if poolSize < 1 {
		poolSize = 1
	}

	pool, err := sahi.NewPool(poolSize, func(i int) (sahi.Detector, error) {
		return dnn.New(params)
	})

	if err != nil {
		log.Fatalf("Error creating detector pool: %v", err)
	}

	defer pool.Close()

	var store *sqlite.Store

	if *dbFile != "" {
		store, err = sqlite.Open(*dbFile)

		if err != nil {
			log.Fatalf("Error opening database: %v", err)
		}

		defer store.Close()
	}

	files, skipped, err := inputImages(*imgFile, *inputDir)

	for _, f := range skipped {
		log.Warnf("Skipping unsupported file %s", f)
	}

	if err != nil {
		log.Fatalf("Error reading input: %v", err)
	}

	// stop issuing tiles on ctrl-c, the current image returns a partial
	// result
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	processed := 0
	total := 0

	for _, file := range files {

		if ctx.Err() != nil {
			break
		}

		img, err := imaging.Open(file, imaging.AutoOrientation(true))

		if err != nil {
			log.Errorf("Error reading image %s: %v", file, err)
			continue
		}

		log.Infof("Processing %s (%dx%d)", filepath.Base(file),
			img.Bounds().Dx(), img.Bounds().Dy())

		res, err := orch.Run(ctx, img, pool)

		if err != nil {
			log.Errorf("Sliced inference failed on %s: %v", file, err)
			continue
		}

		processed++
		total += len(res.Detections)

		printResult(file, res, classNames)

		if store != nil {
			run := sqlite.NewRun(file, img.Bounds().Dx(), img.Bounds().Dy(), cfg, res, classNames)

			if _, err := store.SaveRun(context.Background(), run); err != nil {
				log.Errorf("Error saving run for %s: %v", file, err)
			}
		}

		if *saveFile != "" && len(files) == 1 {
			if err := saveRendered(*saveFile, img, res, classNames, *grid); err != nil {
				log.Errorf("Error saving output image: %v", err)
			} else {
				log.Infof("Saved object detection result to %s", *saveFile)
			}
		}
	}

	if ctx.Err() != nil {
		log.Warn("Interrupted, stopping early")
	}

	fmt.Printf("\nSummary\n")
	fmt.Printf("  Images processed: %d/%d\n", processed, len(files))
	fmt.Printf("  Total detections: %d\n", total)
	fmt.Printf("  Slice size: %dx%d, overlap %.0f%%\n", cfg.TileWidth, cfg.TileHeight,
		cfg.OverlapRatio*100)
	fmt.Printf("  Elapsed: %s\n", time.Since(start))
}

// detectorParams returns the network parameters for the output format
func detectorParams(format, modelFile, configFile string, inputSize int) (dnn.Params, error) {

	f, err := dnn.ParseOutputFormat(format)

	if err != nil {
		return dnn.Params{}, err
	}

	if f == dnn.FormatSSD {
		return dnn.SSDMobileNetParams(modelFile, configFile), nil
	}

	p := dnn.YOLOv8COCOParams(modelFile)
	p.ConfigFile = configFile
	p.InputWidth = inputSize
	p.InputHeight = inputSize

	return p, nil
}

// supportedImage reports if the file has an image extension that is
// processed
func supportedImage(name string) bool {
	return supportedFormats[strings.ToLower(filepath.Ext(name))]
}

// inputImages resolves the -i and -d flags into the images to process.  A
// directory takes precedence over a single image.
func inputImages(imgFile, inputDir string) ([]string, []string, error) {

	if inputDir == "" {
		if !supportedImage(imgFile) {
			return nil, nil, fmt.Errorf("unsupported image format %q, expected one of %s",
				filepath.Ext(imgFile), strings.Join(supportedExtensions(), " "))
		}

		return []string{imgFile}, nil, nil
	}

	files, skipped, err := listImages(inputDir)

	if err != nil {
		return nil, nil, err
	}

	if len(files) == 0 {
		return nil, skipped, fmt.Errorf("no supported images found in %s", inputDir)
	}

	return files, skipped, nil
}

// supportedExtensions lists the supported image extensions sorted
func supportedExtensions() []string {

	exts := make([]string, 0, len(supportedFormats))

	for ext := range supportedFormats {
		exts = append(exts, ext)
	}

	sort.Strings(exts)

	return exts
}

// listImages returns the supported images in dir sorted by name, and the
// files that were skipped
func listImages(dir string) ([]string, []string, error) {

	entries, err := os.ReadDir(dir)

	if err != nil {
		return nil, nil, err
	}

	var files, skipped []string

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		path := filepath.Join(dir, e.Name())

		if supportedImage(e.Name()) {
			files = append(files, path)
		} else {
			skipped = append(skipped, path)
		}
	}

	sort.Strings(files)

	return files, skipped, nil
}

// printResult outputs the detections and stats of an image to stdout
func printResult(file string, res *sahi.Result, classNames []string) {

	fmt.Printf("\n%s: %d detections from %d tiles in %s\n", filepath.Base(file),
		len(res.Detections), res.Stats.TileCount, res.Stats.Elapsed)

	for _, d := range res.Detections {
		fmt.Printf("  %s @ (%d %d %d %d) %.3f\n", sahi.Label(classNames, d.Class),
			d.Box.Left, d.Box.Top, d.Box.Right, d.Box.Bottom, d.Probability)
	}

	if res.Stats.FailedTileCount > 0 {
		fmt.Printf("  %d tiles failed (%d timed out)\n", res.Stats.FailedTileCount,
			res.Stats.TimedOutTileCount)
	}

	if res.Cancelled {
		fmt.Printf("  cancelled, %d tiles skipped\n", res.Stats.SkippedTileCount)
	}
}

// saveRendered draws the detections on the image and writes it to file
func saveRendered(file string, img image.Image, res *sahi.Result,
	classNames []string, grid bool) error {

	mat, err := gocv.ImageToMatRGB(img)

	if err != nil {
		return fmt.Errorf("error converting image: %w", err)
	}

	defer mat.Close()

	if grid {
		render.TileGrid(&mat, res.Tiles, render.DefaultFont(), 1)
	}

	render.DetectionBoxes(&mat, res.Detections, classNames, render.DefaultFont(), 2)

	if ok := gocv.IMWrite(file, mat); !ok {
		return fmt.Errorf("failed to write %s", file)
	}

	return nil
}
