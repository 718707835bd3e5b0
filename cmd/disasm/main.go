package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/urfave/cli"

	"github.com/x87/crust"
)

// attrNames renders the subset of a's boolean fields that are set, in
// the same is_* spelling the library file and OpcodeDictionary.ByAttr
// use.
func attrNames(a crust.Attrs) string {
	var names []string
	for _, f := range []struct {
		name string
		set  bool
	}{
		{"is_branch", a.IsBranch},
		{"is_segment", a.IsSegment},
		{"is_condition", a.IsCondition},
		{"is_constructor", a.IsConstructor},
		{"is_destructor", a.IsDestructor},
		{"is_keyword", a.IsKeyword},
		{"is_nop", a.IsNop},
		{"is_overload", a.IsOverload},
		{"is_static", a.IsStatic},
		{"is_unsupported", a.IsUnsupported},
	} {
		if f.set {
			names = append(names, f.name)
		}
	}
	return strings.Join(names, ",")
}

func dumpOpcodes(libraryPath, game string) error {
	if _, ok := crust.DialectByName(game); !ok {
		return fmt.Errorf("unknown game %q", game)
	}
	dict, err := crust.LoadLibrary(libraryPath)
	if err != nil {
		return err
	}

	defs := dict.All()
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })

	for _, def := range defs {
		fmt.Printf("%04X  %-24s %s\n", def.ID, def.Name, attrNames(def.Attrs))
	}
	return nil
}

func disassemble(inputPath, libraryPath, game, outDir string, workers int) error {
	dialect, ok := crust.DialectByName(game)
	if !ok {
		return fmt.Errorf("unknown game %q", game)
	}

	dict, err := crust.LoadLibrary(libraryPath)
	if err != nil {
		return err
	}

	scripts, closer, err := crust.LoadFile(inputPath, dict, dialect)
	if err != nil {
		return err
	}
	defer closer()

	if err := os.RemoveAll(outDir); err != nil {
		return fmt.Errorf("clearing output directory %s: %w", outDir, err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory %s: %w", outDir, err)
	}

	d := crust.NewDisassembler(dict, dialect, workers)
	warnings, err := d.Run(scripts, outDir)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, w)
	}
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "disasm"
	app.Usage = "Disassemble GTA3-era .scm scripts into labeled text listings"
	app.Action = func(c *cli.Context) error {
		cli.ShowAppHelp(c)
		return nil
	}
	app.Commands = []cli.Command{
		{
			Name:      "disasm",
			Aliases:   []string{"d"},
			Usage:     "Disassemble a .scm file",
			ArgsUsage: "input_file library.json",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "game",
					Value: "gta3",
					Usage: "game dialect: gta3 or vc",
				},
				cli.StringFlag{
					Name:  "out",
					Value: "out",
					Usage: "output directory for disassembly listings",
				},
				cli.IntFlag{
					Name:  "workers",
					Value: 4,
					Usage: "worker pool width for the two-pass disassembler",
				},
			},
			Action: func(c *cli.Context) error {
				args := c.Args()
				if len(args) < 2 {
					return cli.NewExitError("Insufficient arguments", 1)
				}
				if err := disassemble(args[0], args[1], c.String("game"), c.String("out"), c.Int("workers")); err != nil {
					return cli.NewExitError(err.Error(), 1)
				}
				return nil
			},
		},
		{
			Name:      "dump-opcodes",
			Aliases:   []string{"ops"},
			Usage:     "Print every opcode in a library file",
			ArgsUsage: "library.json",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "game",
					Value: "gta3",
					Usage: "game dialect: gta3 or vc",
				},
			},
			Action: func(c *cli.Context) error {
				args := c.Args()
				if len(args) < 1 {
					return cli.NewExitError("Insufficient arguments", 1)
				}
				if err := dumpOpcodes(args[0], c.String("game")); err != nil {
					return cli.NewExitError(err.Error(), 1)
				}
				return nil
			},
		},
	}
	app.Run(os.Args)
}
