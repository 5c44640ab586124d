/*
 * Copyright 2022 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/cloudwego/loopopt"
	"github.com/cloudwego/loopopt/internal/logger"
	"github.com/cloudwego/loopopt/internal/opts"
	"github.com/cloudwego/loopopt/internal/target"
)

var (
	stressFlag = &cli.BoolFlag{
		Name:  "stress",
		Usage: "Widen every threshold so that the transformations fire as often as possible",
	}
	fastFlag = &cli.BoolFlag{
		Name:  "fast",
		Usage: "Optimize for speed rather than size",
	}
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Read the options from a YAML file",
	}
	archFlag = &cli.StringFlag{
		Name:  "arch",
		Usage: "Target architecture, defaults to the host",
	}
	traceFlag = &cli.BoolFlag{
		Name:  "trace",
		Usage: "Trace the decisions of every pass",
	}
	logFlag = &cli.StringFlag{
		Name:  "log",
		Usage: "Also write the trace to this file",
	}
	listingFlag = &cli.BoolFlag{
		Name:  "listing",
		Usage: "Print the method after the optimizations",
	}
)

var (
	tableCommand = &cli.Command{
		Action:    dumpTable,
		Name:      "table",
		Usage:     "Print the loop table of each fixture",
		ArgsUsage: "<fixture> [fixture...]",
		Flags:     []cli.Flag{listingFlag},
	}
	scevCommand = &cli.Command{
		Action:    dumpScev,
		Name:      "scev",
		Usage:     "Print the scalar evolution of the queries and loop phis of each fixture",
		ArgsUsage: "<fixture> [fixture...]",
	}
	dotCommand = &cli.Command{
		Action:    dumpDot,
		Name:      "dot",
		Usage:     "Print the optimized flow graph in Graphviz format",
		ArgsUsage: "<fixture>",
	}
)

func main() {
	app := &cli.App{
		Name:     "loopdump",
		Usage:    "Run the loop optimizer over method fixtures",
		Flags:    []cli.Flag{stressFlag, fastFlag, configFlag, archFlag, traceFlag, logFlag},
		Commands: []*cli.Command{tableCommand, scevCommand, dotCommand},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("loopdump: %v", err))
		os.Exit(1)
	}
}

func makeOptions(ctx *cli.Context) ([]loopopt.Option, error) {
	var ret []loopopt.Option

	/* the config file goes first, flags override it */
	if path := ctx.String(configFlag.Name); path != "" {
		o, err := opts.LoadFile(path)
		if err != nil {
			return nil, err
		}
		ret = append(ret, loopopt.WithOptions(o))
	}

	/* boolean switches */
	if ctx.IsSet(stressFlag.Name) {
		ret = append(ret, loopopt.WithStress(ctx.Bool(stressFlag.Name)))
	}
	if ctx.IsSet(fastFlag.Name) {
		ret = append(ret, loopopt.WithFastCode(ctx.Bool(fastFlag.Name)))
	}
	if arch := ctx.String(archFlag.Name); arch != "" {
		if _, err := target.Lookup(arch); err != nil {
			return nil, err
		}
		ret = append(ret, loopopt.WithArch(arch))
	}

	/* tracing */
	if file := ctx.String(logFlag.Name); file != "" {
		ret = append(ret, loopopt.WithLogger(logger.NewFile(true, file)))
	} else if ctx.Bool(traceFlag.Name) {
		ret = append(ret, loopopt.WithLogger(logger.New(true)))
	}
	return ret, nil
}

func checkArgs(ctx *cli.Context, min int, max int) error {
	if n := ctx.NArg(); n < min || (max >= 0 && n > max) {
		return fmt.Errorf("required arguments: %v", ctx.Command.ArgsUsage)
	} else {
		return nil
	}
}

func dumpTable(ctx *cli.Context) error {
	if err := checkArgs(ctx, 1, -1); err != nil {
		return err
	}
	options, err := makeOptions(ctx)
	if err != nil {
		return err
	}

	/* one table per fixture */
	for _, path := range ctx.Args().Slice() {
		rep, err := loopopt.OptimizeFile(path, options...)
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s): %d inverted, %d hoisted, %d unrolled\n", color.CyanString(rep.Name), path, rep.Inverted, rep.Hoisted, rep.Unrolled)
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Loop", "Parent", "Head", "Top", "Entry", "Bottom", "Exit", "Flags", "Iterator"})
		table.AppendBulk(loopRows(rep))
		table.Render()

		/* cycles the loop table missed */
		for _, r := range rep.Cyclic {
			if !r.Natural {
				fmt.Println(color.YellowString("irreducible: %v", r.Blocks))
			}
		}

		/* the method itself */
		if ctx.Bool(listingFlag.Name) {
			fmt.Println(rep.Listing)
		}
	}
	return nil
}

func loopRows(rep *loopopt.Report) [][]string {
	var ret [][]string
	for _, l := range rep.Loops {
		num := fmt.Sprintf("L%02d", l.Num)
		parent := "-"
		if l.Parent >= 0 {
			parent = fmt.Sprintf("L%02d", l.Parent)
		}

		/* removed loops only keep their number */
		if l.Removed {
			ret = append(ret, []string{color.RedString(num), parent, "", "", "", "", "", color.RedString(l.Flags), ""})
			continue
		}

		/* multiple exits are counted */
		exit := l.Exit
		if l.ExitCount != 1 {
			exit = strconv.Itoa(l.ExitCount)
		}
		ret = append(ret, []string{num, parent, l.Head, l.Top, l.Entry, l.Bottom, exit, l.Flags, l.Iterator})
	}
	return ret
}

func dumpScev(ctx *cli.Context) error {
	if err := checkArgs(ctx, 1, -1); err != nil {
		return err
	}
	options, err := makeOptions(ctx)
	if err != nil {
		return err
	}

	/* one table per fixture */
	for _, path := range ctx.Args().Slice() {
		rep, err := loopopt.OptimizeFile(path, options...)
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s)\n", color.CyanString(rep.Name), path)
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Block", "Stmt", "Loop", "Evolution", "Simplified"})
		table.SetAutoWrapText(false)
		for _, ev := range rep.Scev {
			table.Append(scevRow(ev))
		}
		for _, ev := range rep.Phis {
			table.Append(scevRow(ev))
		}
		table.Render()
	}
	return nil
}

func scevRow(ev loopopt.Evolution) []string {
	row := []string{ev.Block, strconv.Itoa(ev.Stmt), "-", ev.Value, ev.Simplified}
	if ev.Loop >= 0 {
		row[2] = fmt.Sprintf("L%02d", ev.Loop)
	}
	if !ev.Analyzable() {
		row[3] = color.YellowString("not analyzable")
	}
	return row
}

func dumpDot(ctx *cli.Context) error {
	if err := checkArgs(ctx, 1, 1); err != nil {
		return err
	}
	options, err := makeOptions(ctx)
	if err != nil {
		return err
	}

	/* build and optimize by hand to keep the flow graph */
	src, err := os.ReadFile(ctx.Args().First())
	if err != nil {
		return err
	}
	m, err := loopopt.Build(src)
	if err != nil {
		return err
	}
	if _, err = loopopt.Run(m, options...); err != nil {
		return err
	}
	fmt.Println(dot(m))
	return nil
}
