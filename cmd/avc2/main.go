// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ezrec/avc2/cpu"
	"github.com/ezrec/avc2/emulator"
	"github.com/ezrec/avc2/io"
)

// placements collects repeated -d flags.
type placements []io.Placement

func (pl *placements) String() string {
	var text []string
	for _, placement := range *pl {
		text = append(text, placement.String())
	}
	return strings.Join(text, ",")
}

func (pl *placements) Set(text string) (err error) {
	placement, err := io.ParsePlacement(text)
	if err != nil {
		return
	}
	*pl = append(*pl, placement)
	return
}

func main() {
	var compile string
	var save string
	var devices placements
	var listing bool
	var verbose bool

	flag.StringVar(&compile, "c", "", ".asm file to compile")
	flag.Var(&devices, "d", "Device placement SLOT:KIND[:OPTION...], may be repeated")
	flag.StringVar(&save, "s", "", "Save the ROM image to a file, do not execute")
	flag.BoolVar(&listing, "l", false, "Print the program listing")
	flag.BoolVar(&verbose, "v", false, "Verbose mode")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %v [options] [-c file.asm | file.rom]\n", os.Args[0])
		flag.PrintDefaults()
	}

	flag.Parse()

	log.SetFlags(0)
	log.SetPrefix(filepath.Base(os.Args[0]) + ": ")

	prog := &cpu.Program{}
	var rom []byte

	switch {
	case len(compile) != 0 && flag.NArg() == 0:
		// Compile a new program image.
		inf, err := os.Open(compile)
		if err != nil {
			log.Fatalf("%v: %v", compile, err)
		}
		defer inf.Close()

		asm := &cpu.Assembler{Verbose: verbose}
		prog, err = asm.Parse(inf)
		if err != nil {
			log.Fatalf("%v: %v", compile, err)
		}
		rom = prog.Binary()
	case len(compile) == 0 && flag.NArg() == 1:
		var err error
		rom, err = os.ReadFile(flag.Arg(0))
		if err != nil {
			log.Fatalf("%v", err)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}

	if listing {
		fmt.Print(prog.String())
	}

	if len(save) != 0 {
		err := os.WriteFile(save, rom, 0644)
		if err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	system := io.NewSystem(os.Stdin, os.Stdout, os.Stderr)

	emu, err := emulator.NewEmulator(rom, system, devices...)
	if err != nil {
		log.Fatalf("%v", err)
	}
	emu.Program = prog
	emu.Verbose = verbose

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	restore := rawTerm(os.Stdin)
	err = emu.Run(ctx)
	restore()
	stop()

	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

	os.Exit(emu.ExitCode)
}
