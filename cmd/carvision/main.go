package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/menta2k/carvision"
	"github.com/menta2k/carvision/internal/config"
	"github.com/menta2k/carvision/internal/logging"
	"github.com/menta2k/carvision/internal/utils"
	"github.com/menta2k/carvision/pkg/cropper"
	"github.com/menta2k/carvision/pkg/garage"
	"github.com/menta2k/carvision/pkg/scanner"
	"github.com/menta2k/carvision/pkg/types"
)

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "carvision",
		Usage:   "identify cars in photos and keep a history of them",
		Version: carvision.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "config file (yaml, json or toml)",
				Sources: cli.EnvVars("CARVISION_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			cropCommand(),
			scanCommand(),
			listCommand(),
			showCommand(),
			favoriteCommand("favorite", true),
			favoriteCommand("unfavorite", false),
			deleteCommand(),
			configCommand(),
			{
				Name:  "version",
				Usage: "print the version",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Fprintf(cmd.Root().Writer, "carvision %s\n", carvision.GetVersion())
					return nil
				},
			},
		},
	}
}

func stateFlags() []cli.Flag {
	return []cli.Flag{
		&cli.FloatFlag{Name: "scale", Aliases: []string{"s"}, Value: 1, Usage: "zoom level of the photo behind the crop window"},
		&cli.FloatFlag{Name: "offset-x", Aliases: []string{"x"}, Usage: "horizontal pan in screen points"},
		&cli.FloatFlag{Name: "offset-y", Aliases: []string{"y"}, Usage: "vertical pan in screen points"},
	}
}

func stateFromFlags(cmd *cli.Command) cropper.State {
	return cropper.State{
		Scale:  cmd.Float("scale"),
		Offset: cropper.Point{X: cmd.Float("offset-x"), Y: cmd.Float("offset-y")},
	}
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")
	if path == "" && utils.FileExists(config.GetConfigPath()) {
		path = config.GetConfigPath()
	}
	return config.Load(path)
}

func openApp(ctx context.Context, cmd *cli.Command) (*carvision.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	return carvision.Open(ctx, cfg, logger)
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	arg := cmd.Args().First()
	if arg == "" {
		return "", cli.Exit(fmt.Sprintf("usage: carvision %s <%s>", cmd.Name, name), 2)
	}
	return arg, nil
}

func cropCommand() *cli.Command {
	return &cli.Command{
		Name:      "crop",
		Usage:     "cut the crop window out of a photo",
		ArgsUsage: "<image path or URL>",
		Flags: append(stateFlags(),
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: "out", Usage: "output directory"},
			&cli.StringFlag{Name: "format", Value: "jpg", Usage: "output format: jpg|png|webp"},
			&cli.IntFlag{Name: "quality", Value: 90, Usage: "JPEG/WebP output quality (1-100)"},
			&cli.BoolFlag{Name: "lossless", Usage: "WebP lossless mode"},
			&cli.BoolFlag{Name: "debug", Usage: "also write the source with the crop window drawn on it"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			in, err := requireArg(cmd, "image")
			if err != nil {
				return err
			}
			app, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			outDir := cmd.String("out")
			if err := utils.EnsureDir(outDir); err != nil {
				return err
			}

			ph, err := app.LoadPhoto(in)
			if err != nil {
				return err
			}
			cropped, region, err := app.Crop(ph, stateFromFlags(cmd))
			if err != nil {
				return err
			}

			format := cmd.String("format")
			path := utils.CropFilename(in, outDir, format)
			if err := app.Processor.SaveImage(cropped.Normalized(), path, format, int(cmd.Int("quality")), cmd.Bool("lossless")); err != nil {
				return fmt.Errorf("save %s failed: %w", path, err)
			}

			w := cmd.Root().Writer
			fmt.Fprintf(w, "source %dx%d (%s)\n", ph.Width(), ph.Height(), ph.Orientation)
			fmt.Fprintf(w, "region x=%.1f y=%.1f w=%.1f h=%.1f\n", region.X, region.Y, region.Width, region.Height)
			if info, err := os.Stat(path); err == nil {
				fmt.Fprintf(w, "wrote %s (%dx%d, %s)\n", path, cropped.Width(), cropped.Height(), utils.FormatFileSize(info.Size()))
			}

			if cmd.Bool("debug") {
				rect := region.Rect(image.Rect(0, 0, ph.Width(), ph.Height()))
				overlay := app.Processor.CreateDebugOverlay(ph.Normalized(), rect)
				dbgPath := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+"_debug.png")
				if err := app.Processor.SaveImage(overlay, dbgPath, "png", 0, false); err != nil {
					app.Logger.WithError(err).Warn("debug overlay save failed")
				} else {
					fmt.Fprintf(w, "wrote %s\n", dbgPath)
				}
			}
			return nil
		},
	}
}

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:      "scan",
		Usage:     "identify the car in a photo, or in every photo of a directory",
		ArgsUsage: "<image path, URL or directory>",
		Flags: append(stateFlags(),
			&cli.BoolFlag{Name: "json", Usage: "print records as JSON"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			in, err := requireArg(cmd, "image")
			if err != nil {
				return err
			}
			app, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Garage.Load(ctx); err != nil {
				return err
			}

			sources := []string{in}
			if utils.DirExists(in) {
				if sources, err = utils.ListImageFiles(in); err != nil {
					return err
				}
			}

			w := cmd.Root().Writer
			state := stateFromFlags(cmd)
			var failed int
			for _, source := range sources {
				car, err := app.ScanFile(ctx, source, state)
				if err != nil {
					failed++
					app.Logger.WithError(err).WithField("source", source).Error("scan failed")
					fmt.Fprintf(w, "%s: %s\n", source, scanner.UserMessage(err))
					continue
				}
				if cmd.Bool("json") {
					if err := printJSON(w, car); err != nil {
						return err
					}
					continue
				}
				printCar(w, car)
			}

			if failed > 0 {
				return cli.Exit(fmt.Sprintf("%d of %d scans failed", failed, len(sources)), 1)
			}
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "list scanned cars, newest first",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "favorites", Aliases: []string{"f"}, Usage: "only favorite cars"},
			&cli.StringFlag{Name: "search", Aliases: []string{"q"}, Usage: "filter by brand or model"},
			&cli.BoolFlag{Name: "json", Usage: "print records as JSON"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			app, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Garage.Load(ctx); err != nil {
				return err
			}

			cars := app.Garage.History()
			if cmd.Bool("favorites") {
				cars = app.Garage.Favorites()
			}
			cars = garage.Search(cars, cmd.String("search"))

			w := cmd.Root().Writer
			if cmd.Bool("json") {
				if cars == nil {
					cars = []types.Car{}
				}
				return printJSON(w, cars)
			}

			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCAR\tFAV\tSCANNED")
			for _, car := range cars {
				fav := ""
				if car.IsFavorite {
					fav = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", car.ID, car.Title(), fav, car.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "show the details of a car",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print the record as JSON"},
			&cli.StringFlag{Name: "image", Usage: "save the stored photo to this path"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := requireArg(cmd, "id")
			if err != nil {
				return err
			}
			app, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Garage.Load(ctx); err != nil {
				return err
			}
			car, ok := app.Garage.Find(id)
			if !ok {
				return fmt.Errorf("%w: %s", garage.ErrCarNotFound, id)
			}

			w := cmd.Root().Writer
			if cmd.Bool("json") {
				if err := printJSON(w, car); err != nil {
					return err
				}
			} else {
				printCar(w, car)
			}

			if path := cmd.String("image"); path != "" {
				ph, err := app.Garage.Image(ctx, car)
				if err != nil {
					return err
				}
				format := utils.GetFileExtension(path)
				if !utils.IsImageFile(path) {
					format = "jpg"
				}
				if err := app.Processor.SaveImage(ph.Normalized(), path, format, app.Config.Upload.Quality, app.Config.Upload.Lossless); err != nil {
					return err
				}
				fmt.Fprintf(w, "wrote %s\n", path)
			}
			return nil
		},
	}
}

func favoriteCommand(name string, favorite bool) *cli.Command {
	usage := "mark a car as favorite"
	if !favorite {
		usage = "remove a car from the favorites"
	}
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := requireArg(cmd, "id")
			if err != nil {
				return err
			}
			return withGarage(ctx, cmd, func(g *garage.Garage) error {
				return g.SetFavorite(ctx, id, favorite)
			})
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "delete a car and its photo",
		ArgsUsage: "<id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := requireArg(cmd, "id")
			if err != nil {
				return err
			}
			return withGarage(ctx, cmd, func(g *garage.Garage) error {
				return g.Delete(ctx, id)
			})
		},
	}
}

func withGarage(ctx context.Context, cmd *cli.Command, fn func(*garage.Garage) error) error {
	app, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Garage.Load(ctx); err != nil {
		return err
	}

	cancel := app.Garage.Subscribe(func(ev garage.Event) {
		app.Logger.WithFields(logrus.Fields{"event": ev.Kind, "id": ev.Car.ID}).Info(ev.Car.Title())
	})
	defer cancel()

	return fn(app.Garage)
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "inspect or create the configuration",
		Commands: []*cli.Command{
			{
				Name:      "init",
				Usage:     "write the default configuration",
				ArgsUsage: "[path]",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					path := cmd.Args().First()
					if path == "" {
						path = config.GetConfigPath()
					}
					if utils.FileExists(path) {
						return fmt.Errorf("%s already exists", path)
					}
					if err := config.Default().SaveToFile(path); err != nil {
						return err
					}
					fmt.Fprintf(cmd.Root().Writer, "wrote %s\n", path)
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "print the effective configuration",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					redacted := *cfg
					if redacted.Vision.APIKey != "" {
						redacted.Vision.APIKey = "***"
					}
					if redacted.Objects.S3.SecretKey != "" {
						redacted.Objects.S3.SecretKey = "***"
					}
					return printJSON(cmd.Root().Writer, redacted)
				},
			},
		},
	}
}

func printCar(w io.Writer, car types.Car) {
	fmt.Fprintf(w, "%s  [%s]\n", car.Title(), car.ID)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, attr := range car.Attributes() {
		fmt.Fprintf(tw, "  %s\t%s\n", attr.Title, attr.Value)
	}
	if car.ImageURL != "" {
		fmt.Fprintf(tw, "  Image\t%s\n", car.ImageURL)
	}
	_ = tw.Flush()
}

func printJSON(w io.Writer, v interface{}) error {
	js, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(js))
	return err
}
