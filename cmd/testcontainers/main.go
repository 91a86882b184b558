package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/localnerve/autogift/tests/helpers"
)

func main() {
	var showHelp bool
	flag.BoolVar(&showHelp, "h", false, "show help")
	var envFilename string
	flag.StringVar(&envFilename, "f", "", "path to the .env file")
	flag.Parse()

	usage := `
Run the autogift testcontainers (database, redis, authorizer and autogift)
with the environment variables from the .env file.
Prints the mapped addresses as KEY=value lines, then waits for a signal
to terminate the containers.

Usage:

testcontainers [-h] [-f ENV_FILE_PATH]

ENV_FILE_PATH: path to the .env file

example
  testcontainers -f /path/to/something/.env
`
	// if -h flag print usage and return
	if showHelp {
		fmt.Println(usage)
		return
	}

	if envFilename != "" {
		log.Printf("Loading environment variables from %s\n", envFilename)
		if err := godotenv.Load(envFilename); err != nil {
			log.Fatalf("Failed to load environment variables: %v\n", err)
		}
	} else {
		log.Printf("No environment file specified, using current environment variables\n")
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGTSTP, syscall.SIGQUIT)

	ready := make(chan *helpers.TestContainers, 1)
	go func() {
		tc, err := helpers.CreateAllTestContainers(nil)
		if err != nil {
			log.Fatalf("Failed to create test containers: %v\n", err)
		}
		ready <- tc
	}()

	var testContainers *helpers.TestContainers
	select {
	case testContainers = <-ready:
		printEndpoints(testContainers)
		sig := <-sigs
		log.Printf("Received signal: %v, terminating test containers...\n", sig)
	case sig := <-sigs:
		log.Printf("Received signal: %v before the containers were ready\n", sig)
	}

	if testContainers != nil {
		testContainers.Terminate(nil)
	}
}

// printEndpoints writes the mapped addresses as KEY=value lines, ready for a .env file
func printEndpoints(tc *helpers.TestContainers) {
	endpoints, err := tc.Endpoints(context.Background())
	if err != nil {
		log.Printf("Failed to read container endpoints: %v\n", err)
		return
	}

	keys := make([]string, 0, len(endpoints))
	for key := range endpoints {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fmt.Println("# autogift testcontainers")
	for _, key := range keys {
		fmt.Printf("%s=%s\n", key, endpoints[key])
	}
}
