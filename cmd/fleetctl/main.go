// fleetctl is the operator CLI for the fleet server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wanghui5801/fleetmon/internal/models"
)

var (
	serverURL string
	authToken string
)

func main() {
	root := &cobra.Command{
		Use:           "fleetctl",
		Short:         "Operate the fleet liveness registry",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", envOr("FLEETCTL_SERVER", "http://localhost:8080"), "fleet server base URL")
	root.PersistentFlags().StringVar(&authToken, "token", os.Getenv("FLEETCTL_TOKEN"), "operator session token")

	root.AddCommand(
		listCmd(),
		getCmd(),
		forceCmd(),
		orderCmd(),
		rmCmd(),
		admitCmd(),
		revokeCmd(),
		clientsCmd(),
		loginCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			var nodes []models.Node
			if err := request(http.MethodGet, "/api/nodes", nil, &nodes); err != nil {
				return err
			}
			tw := newTabWriter()
			fmt.Fprintln(tw, "NAME\tSTATUS\tCPU\tMEM\tDISK\tIP\tLAST UPDATE")
			for _, n := range nodes {
				fmt.Fprintf(tw, "%s\t%s\t%.1f%%\t%.1f%%\t%.1f%%\t%s\t%s\n",
					n.Name, n.Status, n.CPU, n.Memory, n.Disk, n.IPAddress,
					n.LastUpdate.Local().Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Show one node as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var node models.Node
			if err := request(http.MethodGet, "/api/nodes/"+models.NodeID(args[0]), nil, &node); err != nil {
				return err
			}
			return printJSON(node)
		},
	}
}

func forceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force NAME STATUS",
		Short: "Force a node into running, stopped, or maintenance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"status": args[1]}
			var node models.Node
			if err := request(http.MethodPut, "/api/nodes/"+models.NodeID(args[0])+"/status", body, &node); err != nil {
				return err
			}
			fmt.Printf("%s -> %s\n", node.Name, node.Status)
			return nil
		},
	}
}

func orderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "order NAME INDEX",
		Short: "Set a node's display order index",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var index int
			if _, err := fmt.Sscanf(args[1], "%d", &index); err != nil {
				return fmt.Errorf("index must be an integer: %w", err)
			}
			body := map[string]int{"order_index": index}
			return request(http.MethodPut, "/api/nodes/"+models.NodeID(args[0])+"/order", body, nil)
		},
	}
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm NAME",
		Short: "Delete a node and its admission entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return request(http.MethodDelete, "/api/nodes/"+models.NodeID(args[0]), nil, nil)
		},
	}
}

func admitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "admit NAME",
		Short: "Admit a new agent identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"name": args[0]}
			var node models.Node
			if err := request(http.MethodPost, "/api/clients", body, &node); err != nil {
				return err
			}
			fmt.Printf("admitted %s (id %s, status %s)\n", node.Name, node.ID, node.Status)
			return nil
		},
	}
}

func revokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke NAME",
		Short: "Revoke an admission entry and delete its node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return request(http.MethodDelete, "/api/clients/"+args[0], nil, nil)
		},
	}
}

func clientsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clients",
		Short: "List admitted client names",
		RunE: func(cmd *cobra.Command, args []string) error {
			var clients []models.AllowedClient
			if err := request(http.MethodGet, "/api/clients", nil, &clients); err != nil {
				return err
			}
			tw := newTabWriter()
			fmt.Fprintln(tw, "NAME\tADMITTED")
			for _, c := range clients {
				fmt.Fprintf(tw, "%s\t%s\n", c.Name, c.CreatedAt.Local().Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login PASSWORD",
		Short: "Obtain an operator session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"password": args[0]}
			var out struct {
				Token string `json:"token"`
			}
			if err := request(http.MethodPost, "/api/auth/login", body, &out); err != nil {
				return err
			}
			fmt.Println(out.Token)
			return nil
		},
	}
}

// ---------- http plumbing ----------

func request(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, serverURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func newTabWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
