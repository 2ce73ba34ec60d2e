// Command qcorectl is the Task Server's CLI front-end (spec.md §6): it
// sends one request per invocation to a running qcored and prints the
// JSON response, modeled on the teacher pack's only cobra consumer
// (ja7ad-consumption/cmd/consumption/main.go)'s root-command +
// Flags().XxxVar + RunE structuring.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/qlab-core/qcore/internal/uapi"
)

type globalOpts struct {
	server  string
	timeout time.Duration
}

func main() {
	var g globalOpts

	root := &cobra.Command{
		Use:   "qcorectl",
		Short: "Task Server CLI",
		Long: `qcorectl submits, tracks and reviews tasks against a running qcored
instance over its HTTP/JSON RPC surface (spec.md §6).`,
	}
	root.PersistentFlags().StringVar(&g.server, "server", "http://127.0.0.1:7777", "qcored RPC address")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 10*time.Second, "request timeout")

	root.AddCommand(
		submitCmd(&g),
		cancelCmd(&g),
		trackCmd(&g),
		reportCmd(&g),
		fetchCmd(&g),
		reviewCmd(&g),
		snapshotCmd(&g),
		queryCmd(&g),
		updateCmd(&g),
		createCmd(&g),
		deleteCmd(&g),
		checkpointCmd(&g),
		loginCmd(&g),
		addUserCmd(&g),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "qcorectl:", err)
		os.Exit(1)
	}
}

func call(ctx context.Context, g *globalOpts, verb uapi.Verb, method string, body any, query string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	url := g.server + "/v1/" + string(verb)
	if query != "" {
		url += "?" + query
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s: %v", resp.Status, out["error"])
	}
	return out, nil
}

func printResult(out map[string]any) {
	data, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(data))
}

func submitCmd(g *globalOpts) *cobra.Command {
	var specPath string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "submit a task spec",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(specPath)
			if err != nil {
				return err
			}
			var spec any
			if err := json.Unmarshal(data, &spec); err != nil {
				return err
			}
			out, err := call(cmd.Context(), g, uapi.VerbSubmit, http.MethodPost, spec, "")
			if err != nil {
				return err
			}
			printResult(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&specPath, "spec", "", "path to a JSON task spec file")
	_ = cmd.MarkFlagRequired("spec")
	return cmd
}

func tidCmd(g *globalOpts, use, short string, verb uapi.Verb, method string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " TID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body any
			var query string
			if method == http.MethodPost {
				body = map[string]string{"tid": args[0]}
			} else {
				query = "tid=" + args[0]
			}
			out, err := call(cmd.Context(), g, verb, method, body, query)
			if err != nil {
				return err
			}
			printResult(out)
			return nil
		},
	}
	return cmd
}

func cancelCmd(g *globalOpts) *cobra.Command {
	return tidCmd(g, "cancel", "cancel a pending or running task", uapi.VerbCancel, http.MethodPost)
}

func trackCmd(g *globalOpts) *cobra.Command {
	return tidCmd(g, "track", "report a task's lifecycle state", uapi.VerbTrack, http.MethodGet)
}

func reportCmd(g *globalOpts) *cobra.Command {
	return tidCmd(g, "report", "print a task's terminal report", uapi.VerbReport, http.MethodGet)
}

func snapshotCmd(g *globalOpts) *cobra.Command {
	return tidCmd(g, "snapshot", "print a task's registry snapshot", uapi.VerbSnapshot, http.MethodGet)
}

func checkpointCmd(g *globalOpts) *cobra.Command {
	return tidCmd(g, "checkpoint", "checkpoint the registry for a task", uapi.VerbCheckpoint, http.MethodPost)
}

func fetchCmd(g *globalOpts) *cobra.Command {
	var start int
	var meta bool
	cmd := &cobra.Command{
		Use:   "fetch TID",
		Short: "fetch a task's accumulated signal points",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := fmt.Sprintf("tid=%s&start=%d&meta=%t", args[0], start, meta)
			out, err := call(cmd.Context(), g, uapi.VerbFetch, http.MethodGet, nil, query)
			if err != nil {
				return err
			}
			printResult(out)
			return nil
		},
	}
	cmd.Flags().IntVar(&start, "start", 0, "index to fetch points from")
	cmd.Flags().BoolVar(&meta, "meta", false, "include task metadata")
	return cmd
}

func reviewCmd(g *globalOpts) *cobra.Command {
	var sid int
	cmd := &cobra.Command{
		Use:   "review TID",
		Short: "print a task's per-sid debugging trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := fmt.Sprintf("tid=%s&sid=%d", args[0], sid)
			out, err := call(cmd.Context(), g, uapi.VerbReview, http.MethodGet, nil, query)
			if err != nil {
				return err
			}
			printResult(out)
			return nil
		},
	}
	cmd.Flags().IntVar(&sid, "sid", 0, "step id to review")
	return cmd
}

func pathValueCmd(g *globalOpts, use, short string, verb uapi.Verb, includeValue bool) *cobra.Command {
	var path, value string
	cmd := &cobra.Command{
		Use:   use + " PATH",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path = args[0]
			body := map[string]any{"path": path}
			if includeValue {
				var v any
				if err := json.Unmarshal([]byte(value), &v); err != nil {
					v = value
				}
				body["value"] = v
			}
			out, err := call(cmd.Context(), g, verb, http.MethodPost, body, "")
			if err != nil {
				return err
			}
			printResult(out)
			return nil
		},
	}
	if includeValue {
		cmd.Flags().StringVar(&value, "value", "", "JSON-encoded value")
		_ = cmd.MarkFlagRequired("value")
	}
	return cmd
}

func queryCmd(g *globalOpts) *cobra.Command {
	return pathValueCmd(g, "query", "read a registry path", uapi.VerbQuery, true)
}

func updateCmd(g *globalOpts) *cobra.Command {
	return pathValueCmd(g, "update", "write a registry path", uapi.VerbUpdate, true)
}

func createCmd(g *globalOpts) *cobra.Command {
	return pathValueCmd(g, "create", "create a registry entry", uapi.VerbCreate, true)
}

func deleteCmd(g *globalOpts) *cobra.Command {
	return pathValueCmd(g, "delete", "delete a registry entry", uapi.VerbDelete, false)
}

func loginCmd(g *globalOpts) *cobra.Command {
	var thread, user, host string
	var port int
	cmd := &cobra.Command{
		Use:   "login",
		Short: "open or reuse a session, printing its token",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"thread": thread, "user": user, "host": host, "port": port}
			out, err := call(cmd.Context(), g, uapi.VerbLogin, http.MethodPost, body, "")
			if err != nil {
				return err
			}
			printResult(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&thread, "thread", "", "thread identifier")
	cmd.Flags().StringVar(&user, "user", "", "registered user name")
	cmd.Flags().StringVar(&host, "host", "", "client host")
	cmd.Flags().IntVar(&port, "port", 0, "client port")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func addUserCmd(g *globalOpts) *cobra.Command {
	var user, system string
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "register a user against a system",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"user": user, "system": system}
			out, err := call(cmd.Context(), g, uapi.VerbAddUser, http.MethodPost, body, "")
			if err != nil {
				return err
			}
			printResult(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user name to register")
	cmd.Flags().StringVar(&system, "system", "", "system the user belongs to")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
