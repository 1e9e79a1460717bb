/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/mattn/go-shellwords"
	"github.com/ponyo877/chatrelay/adminpb"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var (
	cfgFile      string
	adminAddress string
	adminClient  adminpb.AdminServiceClient
	grpcConn     *grpc.ClientConn
)

const (
	adminAddressKey = "admin_address"
	envPrefix       = "CHATRELAYCTL"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chatrelayctl",
	Short: "Inspects a running chat relay.",
	Long: `chatrelayctl talks to the admin service of a chat relay server.
It reports statistics, lists rooms with their members and shows the
private message history between two users.

Run without arguments to enter interactive mode.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		conn, err := grpc.NewClient(adminAddress, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("did not connect to admin service: %w", err)
		}
		grpcConn = conn
		adminClient = adminpb.NewAdminServiceClient(conn)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if grpcConn != nil {
			return grpcConn.Close()
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	// one‑shot
	if len(os.Args) > 1 {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}

	// REPL
	fmt.Println("entering interactive mode, type 'exit' to quit")
	for {
		line := strings.TrimSpace(prompt.Input("❯❯❯ ", completer, prompt.OptionTitle("chatrelayctl")))
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		rootCmd.SetArgs(splitArgs(line))
		if err := rootCmd.Execute(); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

// splitArgs honours shell quoting and falls back to whitespace splitting
// when the line does not parse.
func splitArgs(line string) []string {
	args, err := shellwords.Parse(line)
	if err != nil {
		return strings.Fields(line)
	}
	return args
}

func completer(d prompt.Document) []prompt.Suggest {
	if strings.Contains(d.TextBeforeCursor(), " ") {
		return nil
	}
	suggests := []prompt.Suggest{{Text: "exit", Description: "Leave interactive mode"}}
	for _, c := range rootCmd.Commands() {
		if c.Hidden || c.Name() == "completion" {
			continue
		}
		suggests = append(suggests, prompt.Suggest{Text: c.Name(), Description: c.Short})
	}
	return prompt.FilterHasPrefix(suggests, d.GetWordBeforeCursor(), true)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.chatrelayctl.yaml)")
	rootCmd.PersistentFlags().String("admin", "localhost:50051", "Address of the chat relay admin service")

	viper.BindPFlag(adminAddressKey, rootCmd.PersistentFlags().Lookup("admin"))
	viper.SetDefault(adminAddressKey, "localhost:50051")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".chatrelayctl")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintln(os.Stderr, "Error reading config file:", err)
		}
	}

	adminAddress = viper.GetString(adminAddressKey)
}
