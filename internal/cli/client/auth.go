package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

var errInvalidKeyFormat = errors.New("invalid API key format (expected at least 16 characters without whitespace)")

// AuthCmd groups the commands that manage the server's API key locally.
// coachkbd accepts a single static key (COACHKB_API_KEY on the server), so
// there is no account to create: login stores that key after checking the
// server accepts it.
func AuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Store or inspect the API key used to reach coachkbd",
	}
	cmd.AddCommand(AuthLoginCmd(), AuthLogoutCmd(), AuthStatusCmd())
	return cmd
}

func AuthLoginCmd() *cobra.Command {
	var opts loginOptions

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save the server's API key",
		Long: `Save the server's API key and URL to the user config file.

The key is read from --key or, when omitted, from standard input. Unless
--no-verify is given the key is checked against the server first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogin(cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.apiKey, "key", "", "API key")
	cmd.Flags().StringVar(&opts.apiURL, "url", defaultAPIURL, "API URL")
	cmd.Flags().BoolVar(&opts.skipVerify, "no-verify", false, "Save without contacting the server")
	return cmd
}

func AuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := DeleteGlobalConfig(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Saved credentials removed")
			return nil
		},
	}
}

func AuthStatusCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which API key and URL the CLI will use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flagKey, _ := cmd.Flags().GetString("api-key")
			flagURL, _ := cmd.Flags().GetString("api-url")
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runAuthStatus(cmd.OutOrStdout(), flagKey, flagURL, check, outputJSON)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Ask the server whether it accepts the key")
	return cmd
}

type loginOptions struct {
	apiKey     string
	apiURL     string
	skipVerify bool
}

func runAuthLogin(in io.Reader, w io.Writer, opts loginOptions) error {
	key := strings.TrimSpace(opts.apiKey)
	if key == "" {
		fmt.Fprint(w, "API key: ")
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		key = strings.TrimSpace(line)
	}
	if !IsValidAPIKey(key) {
		return errInvalidKeyFormat
	}

	apiURL := strings.TrimRight(strings.TrimSpace(opts.apiURL), "/")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	if !opts.skipVerify {
		if err := checkKey(NewAPIClientWithConfig(key, apiURL)); err != nil {
			return err
		}
	}

	if err := SaveGlobalConfig(&GlobalConfig{APIKey: key, APIURL: apiURL}); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	path, _ := GetConfigPath()
	fmt.Fprintf(w, "Saved key %s for %s to %s\n", maskAPIKey(key), apiURL, path)
	return nil
}

// checkKey calls an authenticated endpoint and reports whether the server
// turned the key down.
func checkKey(api *APIClient) error {
	_, err := api.Get("/sources")
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("server at %s rejected the API key", api.baseURL)
	}
	return fmt.Errorf("could not verify key against %s: %w", api.baseURL, err)
}

type authStatus struct {
	Source   CredentialSource `json:"source"`
	APIURL   string           `json:"api_url,omitempty"`
	APIKey   string           `json:"api_key,omitempty"`
	Accepted *bool            `json:"accepted,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func runAuthStatus(w io.Writer, flagKey, flagURL string, check, outputJSON bool) error {
	source, key, apiURL := GetCredentialSource(flagKey, flagURL)
	status := authStatus{Source: source}
	if source != SourceNone {
		status.APIURL = apiURL
		status.APIKey = maskAPIKey(key)
		if check {
			err := checkKey(NewAPIClientWithConfig(key, apiURL))
			accepted := err == nil
			status.Accepted = &accepted
			if err != nil {
				status.Error = err.Error()
			}
		}
	}

	if outputJSON {
		return printJSON(w, status)
	}

	if source == SourceNone {
		fmt.Fprintln(w, "No API key configured")
		fmt.Fprintln(w, "Run 'coachkb auth login' or set COACHKB_API_KEY and COACHKB_API_URL")
		return nil
	}
	fmt.Fprintf(w, "Source:  %s\n", status.Source)
	fmt.Fprintf(w, "API URL: %s\n", status.APIURL)
	fmt.Fprintf(w, "API key: %s\n", status.APIKey)
	if status.Accepted != nil {
		if *status.Accepted {
			fmt.Fprintln(w, "Server:  key accepted")
		} else {
			fmt.Fprintf(w, "Server:  %s\n", status.Error)
		}
	}
	return nil
}

// maskAPIKey keeps the first and last four characters.
func maskAPIKey(key string) string {
	if len(key) < minAPIKeyLength {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
