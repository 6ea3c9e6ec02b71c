package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"callcore/internal/auth"
	"callcore/internal/config"
)

const version = "1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "start":
		cmdStart()
	case "status":
		cmdStatus()
	case "hash-password":
		cmdHashPassword()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("callcore - modem call control service")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  callcore start                 Start the service")
	fmt.Println("  callcore status                Show configured phones and endpoints")
	fmt.Println("  callcore hash-password [pw]    Print a bcrypt hash for api.users")
	fmt.Println()
	fmt.Printf("The configuration is read from %s unless CALLCORE_CONFIG is set.\n", config.DefaultPath)
}

// cmdStatus prints what the configuration would start.
func cmdStatus() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("callcore %s\n", version)
	fmt.Println("============")
	fmt.Println()
	for _, p := range cfg.Phones {
		target := "simulated modem"
		if p.Radio.Mode == config.ModeNetwork {
			target = p.Radio.Address()
		}
		fmt.Printf("  phone %-12s %-5s %s\n", p.ID, p.Technology, target)
	}
	fmt.Println()
	fmt.Printf("API:      http://%s\n", cfg.API.Address())
	fmt.Printf("History:  %v\n", cfg.History.Enabled)
	fmt.Println()
	fmt.Println("To check a running service:")
	fmt.Printf("  curl http://localhost:%d/health\n", cfg.API.Port)
}

// cmdHashPassword hashes the argument, or a line read from stdin.
func cmdHashPassword() {
	var password string
	if len(os.Args) > 2 {
		password = os.Args[2]
	} else {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Printf("Error reading password: %v\n", err)
			os.Exit(1)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		fmt.Println("Error: empty password")
		os.Exit(1)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Printf("Error hashing password: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
