package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/keepsake/internal/message"
)

func newStatusCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "status",
		Short:   "Show daemon status",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runStatus(v) },
	}

	f := cmd.Flags()
	f.Bool("json", false, "output raw JSON")
	addConfigFlag(cmd)

	return cmd
}

func runStatus(v *viper.Viper) error {
	resp, err := daemonRequest(&message.Message{Type: message.TypeStatus})
	if err != nil {
		return err
	}
	st := resp.Status
	if st == nil {
		return fmt.Errorf("malformed status response")
	}

	if v.GetBool("json") {
		return printJSON(st)
	}

	w := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Version:\t%s\n", st.Version)
	_, _ = fmt.Fprintf(w, "Backend:\t%s\n", st.Backend)
	_, _ = fmt.Fprintf(w, "Socket:\t%s\n", st.Socket)
	_, _ = fmt.Fprintf(w, "Data dir:\t%s\n", st.DataDir)
	_, _ = fmt.Fprintf(w, "Entries:\t%d\n", st.Entries)
	_, _ = fmt.Fprintf(w, "History limit:\t%d\n", st.HistoryLimit)
	_, _ = fmt.Fprintf(w, "Watchers:\t%d\n", st.Watchers)
	if st.DegradedCycles > 0 {
		_, _ = fmt.Fprintf(w, "Degraded cycles:\t%d\n", st.DegradedCycles)
	}
	return w.Flush()
}
