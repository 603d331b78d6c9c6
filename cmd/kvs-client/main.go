// Package main provides the entry point for the kvs client: a one-shot
// get/set/rm command against a running kvs-server.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/jassi-singh/kvs/internal/client"
	"github.com/jassi-singh/kvs/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	sub := os.Args[1]
	args := os.Args[2:]

	switch sub {
	case "get":
		runGet(args)
	case "set":
		runSet(args)
	case "rm":
		runRemove(args)
	default:
		usage()
		os.Exit(1)
	}
}

func runGet(args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	addr := fs.String("addr", config.DefaultAddr, "server address")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: kvs-client get [--addr <host:port>] <key>")
		os.Exit(1)
	}

	val, err := client.Get(*addr, fs.Arg(0))
	if err != nil {
		if err == client.ErrNotFound {
			fmt.Println("Key not found")
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(val)
}

func runSet(args []string) {
	fs := flag.NewFlagSet("set", flag.ExitOnError)
	addr := fs.String("addr", config.DefaultAddr, "server address")
	fs.Parse(args)

	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: kvs-client set [--addr <host:port>] <key> <value>")
		os.Exit(1)
	}

	if err := client.Set(*addr, fs.Arg(0), fs.Arg(1)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runRemove(args []string) {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	addr := fs.String("addr", config.DefaultAddr, "server address")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: kvs-client rm [--addr <host:port>] <key>")
		os.Exit(1)
	}

	if err := client.Remove(*addr, fs.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: kvs-client <get|set|rm> [--addr <host:port>] ...")
}
