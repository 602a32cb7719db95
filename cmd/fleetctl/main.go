// fleetctl calls the fleet control plane API from the command line, either on the main node
// or, with --device, on a remote device through the main node's proxy.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"fleet-control-plane/internal/router"
)

var version = "dev"

// globals are the persistent flags shared by every command.
type globals struct {
	url     string
	token   string
	device  string
	timeout time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:          "fleetctl",
		Short:        "Command line client for the fleet control plane",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.url, "url", envOr("FLEET_URL", "http://localhost:3000"), "Base URL of the main node (FLEET_URL)")
	root.PersistentFlags().StringVar(&g.token, "token", os.Getenv("FLEET_TOKEN"), "Session token (FLEET_TOKEN)")
	root.PersistentFlags().StringVar(&g.device, "device", "", "Route the call to this device through the main node's proxy")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 30*time.Second, "Request timeout")

	root.AddCommand(
		callCmd(g),
		devicesCmd(g),
		pingCmd(g),
		modeCmd(g),
		auditCmd(g),
	)
	return root
}

func (g *globals) client() *router.Client {
	return router.NewClient(g.url, &http.Client{Timeout: g.timeout})
}

func (g *globals) call(cmd *cobra.Command, path, method string, body any) (json.RawMessage, error) {
	raw, err := g.client().Call(cmd.Context(), path, router.CallOptions{
		Method:   method,
		Body:     body,
		DeviceID: g.device,
		Token:    g.token,
	})
	if err != nil {
		return nil, describe(err)
	}
	return raw, nil
}

func callCmd(g *globals) *cobra.Command {
	var dataFlag string
	cmd := &cobra.Command{
		Use:   "call METHOD PATH",
		Short: "Send a raw API request and print the JSON response",
		Example: "  fleetctl call GET /api/devices\n" +
			"  fleetctl call GET /api/wallet/session --device 3f2c...",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body any
			if dataFlag != "" {
				var v json.RawMessage
				if err := json.Unmarshal([]byte(dataFlag), &v); err != nil {
					return fmt.Errorf("--data is not valid JSON: %w", err)
				}
				body = v
			}
			raw, err := g.call(cmd, args[1], strings.ToUpper(args[0]), body)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
	cmd.Flags().StringVarP(&dataFlag, "data", "d", "", "JSON request body")
	return cmd
}

type deviceView struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	IPAddress string     `json:"ipAddress"`
	Port      int        `json:"port"`
	APIKey    string     `json:"apiKey,omitempty"`
	IsMain    bool       `json:"isMain"`
	Online    bool       `json:"online"`
	LastSeen  *time.Time `json:"lastSeen"`
}

func devicesCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List and register devices",
	}
	cmd.AddCommand(devicesListCmd(g), devicesCreateCmd(g))
	return cmd
}

func devicesListCmd(g *globals) *cobra.Command {
	var jsonFlag bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := g.call(cmd, "/api/devices", http.MethodGet, nil)
			if err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(cmd.OutOrStdout(), raw)
			}
			var devices []deviceView
			if err := json.Unmarshal(raw, &devices); err != nil {
				return fmt.Errorf("decode devices: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tADDRESS\tMAIN\tONLINE\tLAST SEEN")
			for _, d := range devices {
				lastSeen := "-"
				if d.LastSeen != nil {
					lastSeen = d.LastSeen.Local().Format(time.DateTime)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s:%d\t%t\t%t\t%s\n", d.ID, d.Name, d.IPAddress, d.Port, d.IsMain, d.Online, lastSeen)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Print the raw JSON response")
	return cmd
}

func devicesCreateCmd(g *globals) *cobra.Command {
	var nameFlag, ipFlag string
	var portFlag int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a device and print its API key (shown only once)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"name": nameFlag, "ipAddress": ipFlag}
			if portFlag != 0 {
				body["port"] = portFlag
			}
			raw, err := g.call(cmd, "/api/devices", http.MethodPost, body)
			if err != nil {
				return err
			}
			var resp struct {
				Device deviceView `json:"device"`
			}
			if err := json.Unmarshal(raw, &resp); err != nil {
				return fmt.Errorf("decode device: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Registered %s (%s:%d)\n", resp.Device.Name, resp.Device.IPAddress, resp.Device.Port)
			fmt.Fprintf(out, "NODE_DEVICE_ID=%s\n", resp.Device.ID)
			fmt.Fprintf(out, "NODE_API_KEY=%s\n", resp.Device.APIKey)
			return nil
		},
	}
	cmd.Flags().StringVar(&nameFlag, "name", "", "Device name")
	cmd.Flags().StringVar(&ipFlag, "ip", "", "Device IP address")
	cmd.Flags().IntVar(&portFlag, "port", 0, "Device port (default 3000)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("ip")
	return cmd
}

func pingCmd(g *globals) *cobra.Command {
	var idFlag, keyFlag string
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Send one heartbeat for a device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"deviceId": idFlag, "apiKey": keyFlag}
			if _, err := g.call(cmd, "/api/devices/ping", http.MethodPost, body); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&idFlag, "device-id", os.Getenv("NODE_DEVICE_ID"), "Device ID (NODE_DEVICE_ID)")
	cmd.Flags().StringVar(&keyFlag, "api-key", os.Getenv("NODE_API_KEY"), "Device API key (NODE_API_KEY)")
	return cmd
}

func modeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "mode",
		Short: "Show whether the control plane runs in public or allow-list mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := g.call(cmd, "/api/auth/check-mode", http.MethodGet, nil)
			if err != nil {
				return err
			}
			var resp struct {
				IsPublicMode bool `json:"isPublicMode"`
				AddressCount *int `json:"addressCount"`
			}
			if err := json.Unmarshal(raw, &resp); err != nil {
				return fmt.Errorf("decode mode: %w", err)
			}
			out := cmd.OutOrStdout()
			if resp.IsPublicMode {
				fmt.Fprintln(out, "public (any wallet may log in)")
			} else {
				fmt.Fprintln(out, "allow-list")
			}
			if resp.AddressCount != nil {
				fmt.Fprintf(out, "addresses: %d\n", *resp.AddressCount)
			}
			return nil
		},
	}
}

func auditCmd(g *globals) *cobra.Command {
	var limitFlag, offsetFlag int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recent audit entries (admin only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/api/audit?limit=%d&offset=%d", limitFlag, offsetFlag)
			raw, err := g.call(cmd, path, http.MethodGet, nil)
			if err != nil {
				return err
			}
			var entries []struct {
				ID        string    `json:"id"`
				Actor     string    `json:"actor"`
				Action    string    `json:"action"`
				Resource  string    `json:"resource"`
				IP        string    `json:"ip"`
				CreatedAt time.Time `json:"createdAt"`
			}
			if err := json.Unmarshal(raw, &entries); err != nil {
				return fmt.Errorf("decode audit entries: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tACTOR\tACTION\tRESOURCE\tIP")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.CreatedAt.Local().Format(time.DateTime), e.Actor, e.Action, e.Resource, e.IP)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limitFlag, "limit", 50, "Maximum entries to return (1-500)")
	cmd.Flags().IntVar(&offsetFlag, "offset", 0, "Entries to skip")
	return cmd
}

// describe turns router errors into messages fit for a terminal.
func describe(err error) error {
	if router.IsTransport(err) {
		return fmt.Errorf("unreachable: %w", err)
	}
	var reqErr *router.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.Code != "" {
			return fmt.Errorf("%d %s: %s", reqErr.Status, reqErr.Code, reqErr.Message)
		}
		return fmt.Errorf("%d: %s", reqErr.Status, reqErr.Message)
	}
	return err
}

func printJSON(w io.Writer, raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		_, err = w.Write(append(raw, '\n'))
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
