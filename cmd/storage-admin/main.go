package main

import (
	"encoding/json"
	"fmt"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/ruteri/storage-router/api"
	"github.com/ruteri/storage-router/api/storagehandler"
	"github.com/ruteri/storage-router/cmd/flags"
	"github.com/ruteri/storage-router/config"
	"github.com/urfave/cli/v2"
)

var flagPool = &cli.StringFlag{
	Name:     "pool",
	Required: true,
	Usage:    "pool name",
}
var flagKey = &cli.StringFlag{
	Name:     "key",
	Required: true,
	Usage:    "object key",
}
var flagFile = &cli.StringFlag{
	Name:     "file",
	Required: true,
	Usage:    "local file",
}
var flagContentType = &cli.StringFlag{
	Name:  "content-type",
	Usage: "MIME type, guessed from the file when empty",
}
var flagExpires = &cli.DurationFlag{
	Name:  "expires",
	Usage: "lifetime of signed or presigned URLs, pool default when zero",
}
var flagFormat = &cli.StringFlag{
	Name:  "format",
	Value: string(config.FormatYAML),
	Usage: "output format of validate: yaml, toml or json",
}

func main() {
	app := &cli.App{
		Name:           "storage-admin",
		Usage:          "Inspect and operate a storage router",
		DefaultCommand: "pools",
		Flags:          []cli.Flag{flags.ServerAddrFlag},
		Commands: []*cli.Command{
			{
				Name:  "pools",
				Usage: "list pools with provider health",
				Action: func(cCtx *cli.Context) error {
					infos, err := client(cCtx).ListPools(cCtx.Context)
					if err != nil {
						return err
					}
					return printJSON(infos)
				},
			},
			{
				Name:  "health",
				Usage: "re-run provider health checks",
				Flags: []cli.Flag{&cli.StringFlag{Name: "pool", Usage: "only this pool"}},
				Action: func(cCtx *cli.Context) error {
					infos, err := client(cCtx).HealthCheck(cCtx.Context, cCtx.String("pool"))
					if err != nil {
						return err
					}
					return printJSON(infos)
				},
			},
			{
				Name:  "put",
				Usage: "upload a file through a pool",
				Flags: []cli.Flag{flagPool, flagKey, flagFile, flagContentType},
				Action: func(cCtx *cli.Context) error {
					path := cCtx.String(flagFile.Name)
					data, err := os.ReadFile(path)
					if err != nil {
						return fmt.Errorf("could not read %s: %w", path, err)
					}

					contentType := cCtx.String(flagContentType.Name)
					if contentType == "" {
						contentType = mime.TypeByExtension(filepath.Ext(path))
					}
					if contentType == "" {
						contentType = http.DetectContentType(data)
					}

					res, err := client(cCtx).Put(cCtx.Context, cCtx.String(flagPool.Name), cCtx.String(flagKey.Name), data, contentType)
					if err != nil {
						return err
					}
					return printJSON(res)
				},
			},
			{
				Name:  "delete",
				Usage: "delete an object from every provider of a pool",
				Flags: []cli.Flag{flagPool, flagKey},
				Action: func(cCtx *cli.Context) error {
					deleted, err := client(cCtx).Delete(cCtx.Context, cCtx.String(flagPool.Name), cCtx.String(flagKey.Name))
					if err != nil {
						return err
					}
					if !deleted {
						return fmt.Errorf("some providers failed to delete %s", cCtx.String(flagKey.Name))
					}
					fmt.Println("deleted")
					return nil
				},
			},
			{
				Name:  "presign",
				Usage: "request direct upload instructions",
				Flags: []cli.Flag{
					flagPool, flagKey, flagContentType, flagExpires,
					&cli.Int64Flag{Name: "size", Usage: "expected upload size in bytes"},
				},
				Action: func(cCtx *cli.Context) error {
					req := api.PresignRequest{
						Key:         cCtx.String(flagKey.Name),
						ContentType: cCtx.String(flagContentType.Name),
						Size:        cCtx.Int64("size"),
					}
					if d := cCtx.Duration(flagExpires.Name); d > 0 {
						req.ExpiresIn = d.String()
					}

					res, err := client(cCtx).Presign(cCtx.Context, cCtx.String(flagPool.Name), req)
					if err != nil {
						return err
					}
					return printJSON(res)
				},
			},
			{
				Name:  "url",
				Usage: "resolve a public or signed URL",
				Flags: []cli.Flag{
					flagPool, flagKey, flagExpires,
					&cli.BoolFlag{Name: "signed", Usage: "request a signed URL"},
				},
				Action: func(cCtx *cli.Context) error {
					res, err := client(cCtx).URL(cCtx.Context, cCtx.String(flagPool.Name), cCtx.String(flagKey.Name), cCtx.Bool("signed"), cCtx.Duration(flagExpires.Name))
					if err != nil {
						return err
					}
					fmt.Println(res.URL)
					return nil
				},
			},
			{
				Name:  "validate",
				Usage: "check a pool file locally and print it normalized",
				Flags: []cli.Flag{flagFile, flagFormat},
				Action: func(cCtx *cli.Context) error {
					pools, err := config.LoadFile(cCtx.String(flagFile.Name))
					if err != nil {
						return err
					}
					pools = config.ApplyDefaults(pools)
					if err := config.Validate(pools); err != nil {
						return err
					}

					out, err := config.Marshal(pools, config.Format(cCtx.String(flagFormat.Name)))
					if err != nil {
						return err
					}
					_, err = os.Stdout.Write(out)
					return err
				},
			},
			{
				Name:  "register",
				Usage: "replace the server's pool table with the pools of a file",
				Flags: []cli.Flag{flagFile},
				Action: func(cCtx *cli.Context) error {
					pools, err := config.LoadFile(cCtx.String(flagFile.Name))
					if err != nil {
						return err
					}

					names, err := client(cCtx).RegisterPools(cCtx.Context, pools)
					if err != nil {
						return err
					}
					return printJSON(names)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func client(cCtx *cli.Context) *storagehandler.Client {
	return storagehandler.NewClient(cCtx.String(flags.ServerAddrFlag.Name))
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
