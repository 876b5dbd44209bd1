package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"go.klb.dev/keepsake/internal/ipc"
	"go.klb.dev/keepsake/internal/message"
	"go.klb.dev/keepsake/internal/wire"
)

// daemonRequest sends one request to the running daemon and returns the
// response. ERROR responses come back as plain errors.
func daemonRequest(msg *message.Message) (*message.Message, error) {
	if !ipc.IsRunning() {
		return nil, errors.New("keepsake daemon is not running (start it with 'keepsake server')")
	}
	conn, err := ipc.Dial()
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	defer conn.Close()

	wc := wire.New(conn)
	if err := wc.WriteMsg(msg); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	resp, err := wc.ReadMsg()
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.Type == message.TypeError {
		return nil, errors.New(resp.Error)
	}
	return resp, nil
}

// printEntries renders entries as a table. Favorites carry a * marker.
func printEntries(entries []message.Entry) {
	if len(entries) == 0 {
		fmt.Println("No entries.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "\tID\tAGE\tKIND\tAPP\tPREVIEW\n")
	_, _ = fmt.Fprintf(tw, "\t--\t---\t----\t---\t-------\n")
	for _, e := range entries {
		marker := ""
		if e.Favorite {
			marker = "*"
		}
		app := e.SourceApp
		if app == "" {
			app = "-"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			marker, e.ID, fmtAge(e.CreatedAt), e.Kind, app, e.Preview,
		)
	}
	_ = tw.Flush()
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(enc))
	return nil
}

func fmtAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	age := time.Since(t).Round(time.Second)
	if age < time.Minute {
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	}
	if age < time.Hour {
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	}
	if age < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	}
	return t.Format("Jan 02 15:04")
}
