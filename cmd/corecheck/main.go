// Command corecheck prints the core message extracted from post text read on
// stdin. With -lines, every input line is treated as a separate post.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/STRATINT/alertwatch/internal/extract"
)

func main() {
	perLine := flag.Bool("lines", false, "treat each input line as a separate post (use \\n for line breaks)")
	flag.Parse()

	if err := run(os.Stdin, os.Stdout, *perLine); err != nil {
		fmt.Fprintln(os.Stderr, "corecheck:", err)
		os.Exit(1)
	}
}

func run(in io.Reader, out io.Writer, perLine bool) error {
	if !perLine {
		data, err := io.ReadAll(in)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, extract.CoreMessage(string(data)))
		return err
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		text := strings.ReplaceAll(scanner.Text(), `\n`, "\n")
		if _, err := fmt.Fprintln(out, extract.CoreMessage(text)); err != nil {
			return err
		}
	}
	return scanner.Err()
}
