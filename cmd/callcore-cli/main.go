package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	apiHost  string
	apiToken string
)

func client() *apiClient {
	return newAPIClient(apiHost, apiToken)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "callcore-cli",
		Short:         "CLI for the callcore control API",
		Long:          `A command line tool to place and control calls on a running callcore service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiHost, "host", "http://localhost:8080", "API base URL")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("CALLCORE_TOKEN"), "bearer token (default $CALLCORE_TOKEN)")

	loginCmd := &cobra.Command{
		Use:   "login <username> <password>",
		Short: "Get an API token",
		Args:  cobra.ExactArgs(2),
		RunE:  runLogin,
	}

	phonesCmd := &cobra.Command{
		Use:   "phones",
		Short: "List phones and their calls",
		RunE:  runPhones,
	}

	callsCmd := &cobra.Command{
		Use:   "calls",
		Short: "Show the foreground, background and ringing calls",
		RunE:  runCalls,
	}

	dialCmd := &cobra.Command{
		Use:   "dial <phone> <address>",
		Short: "Dial an address on a phone",
		Args:  cobra.ExactArgs(2),
		RunE:  runDial,
	}
	dialCmd.Flags().String("clir", "", "CLIR mode: default, invocation or suppression")

	acceptCmd := &cobra.Command{
		Use:   "accept",
		Short: "Answer the ringing call",
		RunE:  runPhoneCommand("/api/v1/calls/accept"),
	}
	acceptCmd.Flags().String("phone", "", "phone to act on (default: first ringing)")

	rejectCmd := &cobra.Command{
		Use:   "reject",
		Short: "Reject the ringing call",
		RunE:  runPhoneCommand("/api/v1/calls/reject"),
	}
	rejectCmd.Flags().String("phone", "", "phone to act on (default: first ringing)")

	hangupCmd := &cobra.Command{
		Use:   "hangup",
		Short: "Hang up a call",
		RunE:  runHangup,
	}
	hangupCmd.Flags().String("phone", "", "phone to act on")
	hangupCmd.Flags().String("role", "", "RINGING, FOREGROUND or BACKGROUND")

	switchCmd := &cobra.Command{
		Use:   "switch",
		Short: "Swap the active and held calls",
		RunE:  runSwap("/api/v1/calls/switch"),
	}
	switchCmd.Flags().String("held-phone", "", "phone holding the call to resume")

	hangupResumeCmd := &cobra.Command{
		Use:   "hangup-resume",
		Short: "Hang up the active call and resume the held one",
		RunE:  runSwap("/api/v1/calls/hangup-resume"),
	}
	hangupResumeCmd.Flags().String("held-phone", "", "phone holding the call to resume")

	dtmfCmd := &cobra.Command{
		Use:   "dtmf <digit>",
		Short: "Play a DTMF tone on the active call",
		Args:  cobra.ExactArgs(1),
		RunE:  runDTMF,
	}

	postDialCmd := &cobra.Command{
		Use:   "postdial <phone> <connection-id> proceed|wild|cancel",
		Short: "Continue or cancel a waiting post-dial string",
		Args:  cobra.ExactArgs(3),
		RunE:  runPostDial,
	}
	postDialCmd.Flags().String("digits", "", "replacement digits for a wild character")

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List finished calls",
		RunE:  runHistory,
	}
	historyCmd.Flags().String("phone", "", "only this phone")
	historyCmd.Flags().Int("limit", 50, "maximum rows")
	historyCmd.Flags().String("from", "", "start time, RFC 3339")
	historyCmd.Flags().String("to", "", "end time, RFC 3339")

	rootCmd.AddCommand(loginCmd, phonesCmd, callsCmd, dialCmd, acceptCmd, rejectCmd,
		hangupCmd, switchCmd, hangupResumeCmd, dtmfCmd, postDialCmd, historyCmd)
	return rootCmd
}

// --- HANDLERS ---

func runLogin(cmd *cobra.Command, args []string) error {
	var resp struct {
		Token string `json:"token"`
	}
	if err := client().post("/api/v1/login", map[string]string{"username": args[0], "password": args[1]}, &resp); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.Token)
	return nil
}

type callView struct {
	Phone       string `json:"phone"`
	Role        string `json:"role"`
	State       string `json:"state"`
	Connections []struct {
		ID      uint64 `json:"id"`
		Address string `json:"address"`
		State   string `json:"state"`
	} `json:"connections"`
}

func writeCall(w *tabwriter.Writer, c callView) {
	if len(c.Connections) == 0 {
		fmt.Fprintf(w, "%s\t%s\t%s\t-\t-\n", c.Phone, c.Role, c.State)
		return
	}
	for _, conn := range c.Connections {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s (%s)\n", c.Phone, c.Role, c.State, conn.ID, conn.Address, conn.State)
	}
}

func runPhones(cmd *cobra.Command, args []string) error {
	var phones []struct {
		Phone      string   `json:"phone"`
		Technology string   `json:"technology"`
		State      string   `json:"state"`
		Ringing    callView `json:"ringing"`
		Foreground callView `json:"foreground"`
		Background callView `json:"background"`
	}
	if err := client().get("/api/v1/phones", nil, &phones); err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "PHONE\tTECH\tSTATE\tRINGING\tFOREGROUND\tBACKGROUND")
	fmt.Fprintln(w, "-----\t----\t-----\t-------\t----------\t----------")
	for _, p := range phones {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", p.Phone, p.Technology, p.State,
			p.Ringing.State, p.Foreground.State, p.Background.State)
	}
	return w.Flush()
}

func runCalls(cmd *cobra.Command, args []string) error {
	var calls struct {
		State      string   `json:"state"`
		Foreground callView `json:"foreground"`
		Background callView `json:"background"`
		Ringing    callView `json:"ringing"`
	}
	if err := client().get("/api/v1/calls", nil, &calls); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Phone state: %s\n\n", calls.State)
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "PHONE\tROLE\tSTATE\tCONN\tADDRESS")
	fmt.Fprintln(w, "-----\t----\t-----\t----\t-------")
	for _, c := range []callView{calls.Foreground, calls.Background, calls.Ringing} {
		writeCall(w, c)
	}
	return w.Flush()
}

func runDial(cmd *cobra.Command, args []string) error {
	body := map[string]string{
		"address": args[1],
		"clir":    getString(cmd, "clir"),
	}
	var conn struct {
		ID            uint64 `json:"id"`
		TelecomCallID string `json:"telecom_call_id"`
		State         string `json:"state"`
	}
	if err := client().post("/api/v1/phones/"+url.PathEscape(args[0])+"/dial", body, &conn); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Dialing %s on %s: connection %d (%s) %s\n",
		args[1], args[0], conn.ID, conn.TelecomCallID, conn.State)
	return nil
}

func runPhoneCommand(path string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		var resp map[string]string
		if err := client().post(path, map[string]string{"phone": getString(cmd, "phone")}, &resp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OK (phone %s)\n", resp["phone"])
		return nil
	}
}

func runHangup(cmd *cobra.Command, args []string) error {
	body := map[string]string{
		"phone": getString(cmd, "phone"),
		"role":  getString(cmd, "role"),
	}
	var resp map[string]string
	if err := client().post("/api/v1/calls/hangup", body, &resp); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Hung up %s call on %s\n", resp["role"], resp["phone"])
	return nil
}

func runSwap(path string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		body := map[string]string{"held_phone": getString(cmd, "held-phone")}
		if err := client().post(path, body, nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "OK")
		return nil
	}
}

func runDTMF(cmd *cobra.Command, args []string) error {
	var resp struct {
		Sent bool `json:"sent"`
	}
	if err := client().post("/api/v1/calls/dtmf", map[string]string{"digit": args[0]}, &resp); err != nil {
		return err
	}
	if !resp.Sent {
		fmt.Fprintln(cmd.OutOrStdout(), "No active call, tone not sent")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent %s\n", args[0])
	return nil
}

func runPostDial(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid connection id %q", args[1])
	}
	body := map[string]interface{}{
		"connection_id": id,
		"action":        args[2],
		"digits":        getString(cmd, "digits"),
	}
	if err := client().post("/api/v1/phones/"+url.PathEscape(args[0])+"/postdial", body, nil); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "OK")
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	for _, name := range []string{"phone", "from", "to"} {
		if v := getString(cmd, name); v != "" {
			q.Set(name, v)
		}
	}
	limit, _ := cmd.Flags().GetInt("limit")
	q.Set("limit", strconv.Itoa(limit))

	var logs []struct {
		Phone          string `json:"phone"`
		Address        string `json:"address"`
		Direction      string `json:"direction"`
		Cause          string `json:"cause"`
		DisconnectedAt string `json:"disconnected_at"`
		DurationSec    int    `json:"duration_sec"`
	}
	if err := client().get("/api/v1/history", q, &logs); err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ENDED\tPHONE\tDIR\tADDRESS\tCAUSE\tSECS")
	fmt.Fprintln(w, "-----\t-----\t---\t-------\t-----\t----")
	for _, l := range logs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n", l.DisconnectedAt, l.Phone, l.Direction, l.Address, l.Cause, l.DurationSec)
	}
	return w.Flush()
}

func getString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}
