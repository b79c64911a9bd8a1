package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nullpointer/gpio-sensor/internal/controlfile"
	"github.com/nullpointer/gpio-sensor/internal/web"
	"github.com/spf13/cobra"
)

// remote addresses the control file of a running daemon.
type remote struct {
	addr string
	name string
}

func (r *remote) flags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.addr, "addr", "http://localhost:8080", "base URL of the running daemon")
	cmd.Flags().StringVar(&r.name, "name", controlfile.DefaultName, "control file name")
}

func (r *remote) url() (string, error) {
	base, err := url.Parse(r.addr)
	if err != nil {
		return "", fmt.Errorf("parse --addr %q: %w", r.addr, err)
	}
	return base.JoinPath(web.ProcPrefix, r.name).String(), nil
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

// checkResponse turns a non-2xx response into an error carrying the body.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
}

func newCatCmd() *cobra.Command {
	var (
		r    remote
		size int
	)
	cmd := &cobra.Command{
		Use:   "cat",
		Short: "Read the control file of a running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := r.url()
			if err != nil {
				return err
			}
			if size > 0 {
				u += "?size=" + strconv.Itoa(size)
			}
			resp, err := httpClient.Get(u)
			if err != nil {
				return fmt.Errorf("read %s: %w", r.name, err)
			}
			defer resp.Body.Close()
			if err := checkResponse(resp); err != nil {
				return fmt.Errorf("read %s: %w", r.name, err)
			}
			_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
			return err
		},
	}
	r.flags(cmd)
	cmd.Flags().IntVar(&size, "size", 0, "caller buffer size in bytes (0 = file capacity)")
	return cmd
}

func newEchoCmd() *cobra.Command {
	var (
		r         remote
		noNewline bool
	)
	cmd := &cobra.Command{
		Use:   "echo <value>",
		Short: "Write a selector to the control file of a running daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := r.url()
			if err != nil {
				return err
			}
			value := args[0]
			if !noNewline {
				value += "\n"
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPut, u, strings.NewReader(value))
			if err != nil {
				return err
			}
			resp, err := httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("write %s: %w", r.name, err)
			}
			defer resp.Body.Close()
			if err := checkResponse(resp); err != nil {
				return fmt.Errorf("write %s: %w", r.name, err)
			}
			return nil
		},
	}
	r.flags(cmd)
	cmd.Flags().BoolVarP(&noNewline, "no-newline", "n", false, "do not append a trailing newline")
	return cmd
}
