// imagectl is a small client for a running imaged instance: health checks
// and generation requests from the command line.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

type clientConfig struct {
	Server string
	Token  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := buildRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	cfg := &clientConfig{
		Server: envOr("IMAGED_SERVER", "http://127.0.0.1:8000"),
		Token:  os.Getenv("IMAGED_API_TOKEN"),
	}
	root := &cobra.Command{
		Use:           "imagectl",
		Short:         "Client for the imaged generation daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfg.Server, "server", cfg.Server, "imaged base URL (defaults IMAGED_SERVER)")
	root.PersistentFlags().StringVar(&cfg.Token, "token", cfg.Token, "bearer token (defaults IMAGED_API_TOKEN)")

	root.AddCommand(buildHealthCmd(cfg))
	root.AddCommand(buildGenerateCmd(cfg))
	return root
}

func buildHealthCmd(cfg *clientConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Print the daemon's health snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, cfg.Server+"/health", nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return err
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, body, "", "  "); err != nil {
				pretty.Write(body)
			}
			fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unhealthy (status %d)", resp.StatusCode)
			}
			return nil
		},
	}
}

func buildGenerateCmd(cfg *clientConfig) *cobra.Command {
	var (
		prompt   string
		guidance float64
		steps    int
		width    int
		height   int
		imgPath  string
		outPath  string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:     "generate",
		Short:   "Generate or transform an image",
		Example: "  imagectl generate --prompt 'voxel art fox' -o fox.jpg",
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt == "" {
				return fmt.Errorf("--prompt is required")
			}
			var body bytes.Buffer
			mw := multipart.NewWriter(&body)
			_ = mw.WriteField("prompt", prompt)
			_ = mw.WriteField("guidance_scale", strconv.FormatFloat(guidance, 'f', -1, 64))
			_ = mw.WriteField("num_inference_steps", strconv.Itoa(steps))
			_ = mw.WriteField("width", strconv.Itoa(width))
			_ = mw.WriteField("height", strconv.Itoa(height))
			if imgPath != "" {
				f, err := os.Open(imgPath)
				if err != nil {
					return err
				}
				defer f.Close()
				part, err := mw.CreateFormFile("image", imgPath)
				if err != nil {
					return err
				}
				if _, err := io.Copy(part, f); err != nil {
					return err
				}
			}
			if err := mw.Close(); err != nil {
				return err
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Server+"/generate", &body)
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", mw.FormDataContentType())
			if cfg.Token != "" {
				req.Header.Set("Authorization", "Bearer "+cfg.Token)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
				return fmt.Errorf("generate failed (status %d): %s", resp.StatusCode, bytes.TrimSpace(b))
			}
			out, err := os.Create(outPath)
			if err != nil {
				return err
			}
			n, err := io.Copy(out, resp.Body)
			if cerr := out.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes, %s, %ss)\n",
				outPath, n,
				resp.Header.Get("X-Actual-Resolution"),
				resp.Header.Get("X-Processing-Time"))
			return nil
		},
	}
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "text prompt (required)")
	cmd.Flags().Float64Var(&guidance, "guidance-scale", 2.5, "guidance scale")
	cmd.Flags().IntVar(&steps, "steps", 10, "inference steps")
	cmd.Flags().IntVar(&width, "width", 1024, "output width")
	cmd.Flags().IntVar(&height, "height", 1024, "output height")
	cmd.Flags().StringVarP(&imgPath, "image", "i", "", "optional input image path")
	cmd.Flags().StringVarP(&outPath, "output", "o", "out.jpg", "output file")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "request timeout (0 = none)")
	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
