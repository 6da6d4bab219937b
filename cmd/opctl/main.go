// opctl is the operator CLI for services embedding the operation
// cache's introspection API: list cached stores, show aggregate stats,
// and clear store subtrees on a running service.
//
// Configuration precedence (highest to lowest):
//  1. Command-line flags
//  2. Environment variables (OPCTL_ prefix)
//  3. Configuration file values (--config, or $HOME/.opctl.yaml)
//  4. Default values
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"eve.evalgo.org/operation/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "opctl",
	Short: "inspect and manage a running service's operation cache",
	Long: `opctl talks to the introspection endpoints a service mounts via the
httpapi package and lets an operator list cached operation stores,
read aggregate statistics, and clear store subtrees without restarting
the service.`,
}

var storesCmd = &cobra.Command{
	Use:   "stores",
	Short: "operate on the cached stores of a running service",
}

var storesListCmd = &cobra.Command{
	Use:   "list",
	Short: "list cached stores, optionally under a path prefix",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON(cmd, "/operations", pathQuery(cmd))
	},
}

var storesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "show aggregate cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON(cmd, "/operations/stats", nil)
	},
}

var storesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "drop cached stores under a path prefix",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := http.NewRequest(http.MethodDelete, endpoint(cmd, "/operations", pathQuery(cmd)), nil)
		if err != nil {
			return err
		}
		return doJSON(cmd, req)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print opctl's cache module version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.CacheVersion())
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.opctl.yaml)")
	rootCmd.PersistentFlags().String("server", "http://localhost:8080/api", "base URL of the service's introspection API")
	rootCmd.PersistentFlags().Duration("timeout", 10*time.Second, "request timeout")
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))

	storesListCmd.Flags().String("path", "", "slash-separated path prefix, e.g. user/42")
	storesClearCmd.Flags().String("path", "", "slash-separated path prefix, e.g. user/42")

	storesCmd.AddCommand(storesListCmd, storesStatsCmd, storesClearCmd)
	rootCmd.AddCommand(storesCmd, versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".opctl")
	}
	viper.SetEnvPrefix("OPCTL")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

func pathQuery(cmd *cobra.Command) url.Values {
	path, _ := cmd.Flags().GetString("path")
	if path == "" {
		return nil
	}
	return url.Values{"path": []string{path}}
}

func endpoint(cmd *cobra.Command, route string, query url.Values) string {
	base := viper.GetString("server")
	u := base + route
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func getJSON(cmd *cobra.Command, route string, query url.Values) error {
	req, err := http.NewRequest(http.MethodGet, endpoint(cmd, route, query), nil)
	if err != nil {
		return err
	}
	return doJSON(cmd, req)
}

// doJSON performs the request and pretty-prints the JSON response.
func doJSON(cmd *cobra.Command, req *http.Request) error {
	client := &http.Client{Timeout: viper.GetDuration("timeout")}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s: %s", resp.Status, string(body))
	}

	var pretty any
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), string(body))
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
