package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"pkt.systems/robotrpc/chunk"
)

func newChunkCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunk",
		Short: "Split payloads into DataChunk streams and join them back",
		Long: `Offline chunk tooling. A chunk stream is a sequence of varint
length-delimited DataChunk records, the same chunks chunked calls put on the
wire. "-" or an omitted path means stdin/stdout.`,
	}
	cmd.AddCommand(newChunkSplitCommand(c), newChunkJoinCommand())
	return cmd
}

func newChunkSplitCommand(c *cli) *cobra.Command {
	var checksum bool
	cmd := &cobra.Command{
		Use:   "split [input] [output]",
		Short: "Split a payload into a chunk stream",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := parseSize(c.v.GetString("chunk-size"))
			if err != nil {
				return fmt.Errorf("chunk-size: %w", err)
			}
			in, closeIn, err := openInput(cmd, argAt(args, 0))
			if err != nil {
				return err
			}
			defer closeIn()
			payload, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			var opts []chunk.EncodeOption
			if checksum || c.v.GetBool("chunk-checksums") {
				opts = append(opts, chunk.WithChecksum())
			}
			chunks, err := chunk.EncodeBytes(payload, size, opts...)
			if err != nil {
				return err
			}
			out, closeOut, err := openOutput(cmd, argAt(args, 1))
			if err != nil {
				return err
			}
			w := chunk.NewRecordWriter(out)
			for _, ch := range chunks {
				if err := w.Write(ch); err != nil {
					closeOut()
					return err
				}
			}
			if err := w.Flush(); err != nil {
				closeOut()
				return err
			}
			if err := closeOut(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "split %s into %d chunks of at most %s\n",
				humanize.IBytes(uint64(len(payload))), len(chunks), humanize.IBytes(uint64(size)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&checksum, "checksum", false, "stamp chunks with an xxhash64 of the payload")
	return cmd
}

func newChunkJoinCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "join [input] [output]",
		Short: "Reassemble a chunk stream into its payload",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, closeIn, err := openInput(cmd, argAt(args, 0))
			if err != nil {
				return err
			}
			defer closeIn()
			r := chunk.NewRecordReader(in)
			s := chunk.NewStream()
			for {
				dc, err := r.Next()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return err
				}
				if _, err := s.Push(dc); err != nil {
					return err
				}
			}
			if err := s.Reassembler().Close(); err != nil {
				return err
			}
			payload := s.Reassembler().Payload()
			out, closeOut, err := openOutput(cmd, argAt(args, 1))
			if err != nil {
				return err
			}
			if _, err := out.Write(payload); err != nil {
				closeOut()
				return fmt.Errorf("write output: %w", err)
			}
			if err := closeOut(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "joined %d chunks into %s\n",
				s.Reassembler().Received(), humanize.IBytes(uint64(len(payload))))
			return nil
		},
	}
}

func argAt(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	return f, f.Close, nil
}
