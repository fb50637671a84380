// red-demo exercises the remote-object runtime against the in-memory
// transport: chunked string round-trips, async file transfer bursts and
// process listing, with the wire traffic visible in the logs.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tfchina/brickv/object"
	"github.com/tfchina/brickv/protocol"
	"github.com/tfchina/brickv/session"
	"github.com/tfchina/brickv/transporttest"
)

var verbose bool

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

// newSession builds a session on a fresh in-memory transport and creates it
// on the fake server.
func newSession() (*transporttest.Transport, *session.Session, error) {
	tr := transporttest.New()

	sess, err := session.New(tr, session.WithLogger(newLogger()))
	if err != nil {
		tr.Close()
		return nil, nil, err
	}
	if err := sess.Create(); err != nil {
		tr.Close()
		return nil, nil, err
	}

	return tr, sess, nil
}

func newStringRoundtripCommand() *cobra.Command {
	var length int

	cmd := &cobra.Command{
		Use:   "string-roundtrip",
		Short: "Allocate a remote string and read it back in chunks",
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, sess, err := newSession()
			if err != nil {
				return err
			}
			defer tr.Close()
			defer sess.Close()

			data := strings.Repeat("red-demo ", length/9+1)[:length]

			str := object.NewString(sess)
			if err := str.Allocate(data); err != nil {
				return err
			}
			defer str.Release()

			if err := str.Update(); err != nil {
				return err
			}

			if str.Data() != data {
				return fmt.Errorf("round-trip mismatch: sent %d bytes, got %d back", len(data), len(str.Data()))
			}

			fmt.Printf("round-tripped %d bytes: %d allocate, %d set chunks, %d get chunks\n",
				len(data), tr.Calls("AllocateString"), tr.Calls("SetStringChunk"), tr.Calls("GetStringChunk"))

			return nil
		},
	}

	cmd.Flags().IntVar(&length, "length", 200, "string length in bytes")

	return cmd
}

func newFileBurstCommand() *cobra.Command {
	var size int

	cmd := &cobra.Command{
		Use:   "file-burst",
		Short: "Write a file asynchronously in bursts and read it back",
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, sess, err := newSession()
			if err != nil {
				return err
			}
			defer tr.Close()
			defer sess.Close()

			data := make([]byte, size)
			for i := range data {
				data[i] = byte(i)
			}

			file := object.NewFile(sess)
			err = file.Open("/tmp/red-demo.bin",
				protocol.FileFlagWriteOnly|protocol.FileFlagCreate|protocol.FileFlagTruncate, 0o644, 0, 0)
			if err != nil {
				return err
			}
			defer file.Release()

			written := make(chan error, 1)
			err = file.WriteAsync(data, nil, func(err error) { written <- err })
			if err != nil {
				return err
			}
			if err := <-written; err != nil {
				return err
			}

			fmt.Printf("wrote %d bytes: %d unchecked, %d acknowledged chunks\n",
				len(data), tr.Calls("WriteFileUnchecked"), tr.Calls("WriteFileAsync"))

			reader := object.NewFile(sess)
			if err := reader.Open("/tmp/red-demo.bin", protocol.FileFlagReadOnly, 0, 0, 0); err != nil {
				return err
			}
			defer reader.Release()

			type result struct {
				data []byte
				err  error
			}
			read := make(chan result, 1)
			err = reader.ReadAsync(uint64(len(data)), nil, func(data []byte, err error) {
				read <- result{data: data, err: err}
			})
			if err != nil {
				return err
			}

			r := <-read
			if r.err != nil {
				return r.err
			}
			if len(r.data) != len(data) {
				return fmt.Errorf("read back %d of %d bytes", len(r.data), len(data))
			}

			fmt.Printf("read %d bytes back in %d-byte chunks\n", len(r.data), protocol.FileMaxReadAsync)

			return nil
		},
	}

	cmd.Flags().IntVar(&size, "size", 256*1024, "transfer size in bytes")

	return cmd
}

func newProcessListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "process-list",
		Short: "List the processes known to the fake server",
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, sess, err := newSession()
			if err != nil {
				return err
			}
			defer tr.Close()
			defer sess.Close()

			tr.AddProcess(transporttest.ProcessDef{
				Executable: "/usr/bin/python3",
				Arguments:  []string{"/home/tf/programs/blink/bin/main.py"},
				PID:        1402,
				State:      protocol.ProcessStateRunning,
			})
			tr.AddProcess(transporttest.ProcessDef{
				Executable: "/bin/sh",
				Arguments:  []string{"-c", "sleep 60"},
				PID:        1403,
				State:      protocol.ProcessStateRunning,
			})

			list, err := object.Processes(sess)
			if err != nil {
				return err
			}
			defer list.Release()

			for _, item := range list.Items() {
				proc, ok := item.(*object.Process)
				if !ok {
					continue
				}

				state, _, _ := proc.State()
				fmt.Printf("pid %-6d %-8s %s %s\n", proc.PID(), state,
					proc.Executable().Data(), strings.Join(stringItems(proc.Arguments()), " "))
			}

			return nil
		},
	}
}

func stringItems(list *object.List) []string {
	var values []string
	for _, item := range list.Items() {
		if str, ok := item.(*object.String); ok {
			values = append(values, str.Data())
		}
	}
	return values
}

func main() {
	root := &cobra.Command{
		Use:           "red-demo",
		Short:         "Exercise the remote-object runtime against an in-memory server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newStringRoundtripCommand())
	root.AddCommand(newFileBurstCommand())
	root.AddCommand(newProcessListCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
