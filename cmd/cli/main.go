// vidqr CLI: an interactive command-line client for a vidqr server.
package main

import (
	"bufio"
	"crypto/tls"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vidqr/vidqr/pkg/client"
	"github.com/vidqr/vidqr/pkg/version"
)

func main() {
	host := flag.String("h", "localhost:6161", "Server address")
	useTLS := flag.Bool("tls", false, "Use TLS")
	skipVerify := flag.Bool("insecure", false, "Skip TLS certificate verification")
	flag.Parse()

	fmt.Printf("vidqr CLI v%s — type 'help' for commands\n\n", version.Version)

	cfg := client.DefaultPoolConfig()
	if *useTLS {
		cfg.TLSConfig = &tls.Config{InsecureSkipVerify: *skipVerify}
	}

	c, err := client.NewClientWithConfig(*host, cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := c.Close(); err != nil {
			fmt.Printf("Close error: %v\n", err)
		}
	}()

	fmt.Printf("Connected to %s\n\n", *host)

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("vidqr %s> ", *host)
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToUpper(parts[0])
		args := parts[1:]

		switch cmd {
		case "QUIT", "EXIT":
			fmt.Println("Bye!")
			return

		case "HELP":
			printHelp()

		case "PING":
			start := time.Now()
			if err := c.Ping(); err != nil {
				fmt.Printf("Error: %v\n", err)
			} else {
				fmt.Printf("PONG (%v)\n", time.Since(start))
			}

		case "INFO":
			info, err := c.Info()
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			fmt.Println(info)

		case "CREATE":
			// CREATE <store>
			if len(args) < 1 {
				fmt.Println("Usage: CREATE <store>")
				continue
			}
			if err := c.CreateStore(args[0]); err != nil {
				fmt.Printf("Error: %v\n", err)
			} else {
				fmt.Println("OK")
			}

		case "INGEST":
			// INGEST <store> <text...>
			if len(args) < 2 {
				fmt.Println("Usage: INGEST <store> <text...>")
				continue
			}
			ids, err := c.Ingest(args[0], strings.Join(args[1:], " "))
			if err != nil {
				fmt.Printf("Error: %v\n", err)
			} else {
				fmt.Printf("OK (chunk ids: %v)\n", ids)
			}

		case "SEAL":
			// SEAL <store>
			if len(args) < 1 {
				fmt.Println("Usage: SEAL <store>")
				continue
			}
			info, err := c.Seal(args[0])
			if err != nil {
				fmt.Printf("Error: %v\n", err)
			} else {
				fmt.Println(info)
			}

		case "QUERY":
			// QUERY <store> <k> <text...>
			if len(args) < 3 {
				fmt.Println("Usage: QUERY <store> <k> <text...>")
				continue
			}
			k, err := strconv.Atoi(args[1])
			if err != nil {
				fmt.Println("k must be an integer")
				continue
			}
			results, err := c.Query(args[0], strings.Join(args[2:], " "), k)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			for i, r := range results {
				fmt.Printf("  %d. id=%d similarity=%.4f distance=%.4f\n", i+1, r.ID, r.Similarity, r.Distance)
			}

		case "RETRIEVE":
			// RETRIEVE <store>
			if len(args) < 1 {
				fmt.Println("Usage: RETRIEVE <store>")
				continue
			}
			texts, err := c.Retrieve(args[0])
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			for i, text := range texts {
				if len(text) > 80 {
					text = text[:80] + "..."
				}
				fmt.Printf("  %d. %s\n", i+1, text)
			}

		case "LIST":
			names, err := c.ListStores()
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			if len(names) == 0 {
				fmt.Println("(no open stores)")
			}
			for _, name := range names {
				fmt.Printf("  %s\n", name)
			}

		case "DELETE":
			// DELETE <store>
			if len(args) < 1 {
				fmt.Println("Usage: DELETE <store>")
				continue
			}
			if err := c.DeleteStore(args[0]); err != nil {
				fmt.Printf("Error: %v\n", err)
			} else {
				fmt.Println("OK")
			}

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func printHelp() {
	fmt.Println(`Commands:
  PING                            Check connection
  INFO                            Server status

  CREATE <store>                  Open or create a store
  INGEST <store> <text...>        Chunk, embed, and index text
  SEAL <store>                    Build the buffered chunks into the corpus video
  QUERY <store> <k> <text...>     Nearest-k chunks by similarity
  RETRIEVE <store>                Decode every sealed chunk back to text

  LIST                            List open stores
  DELETE <store>                  Close and forget a store

  HELP                            Show this help
  QUIT                            Exit`)
}
