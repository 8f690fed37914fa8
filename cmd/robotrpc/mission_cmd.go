package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pkt.systems/robotrpc"
	"pkt.systems/robotrpc/api"
	"pkt.systems/robotrpc/mission"
)

func newMissionCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mission",
		Short: "Drive the robot mission service",
	}
	cmd.AddCommand(
		newMissionLoadCommand(c),
		newMissionPlayCommand(c),
		newMissionPauseCommand(c),
		newMissionRestartCommand(c),
		newMissionStateCommand(c),
		newMissionInfoCommand(c),
		newMissionGetCommand(c),
		newMissionAnswerCommand(c),
	)
	return cmd
}

// missionRun connects, runs fn and prints its result as YAML. The error of
// fn is returned after the result is printed, so a domain failure still
// shows the robot's answer.
func (c *cli) missionRun(cmd *cobra.Command, fn func(*robotrpc.Session) (any, error)) error {
	sess, cleanup, err := c.connect(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()
	out, callErr := fn(sess)
	if out != nil {
		if err := printYAML(cmd.OutOrStdout(), out); err != nil {
			return err
		}
	}
	return callErr
}

func newMissionLoadCommand(c *cli) *cobra.Command {
	var (
		name      string
		mode      string
		resources []string
	)
	cmd := &cobra.Command{
		Use:   "load <mission-file>",
		Short: "Load a serialized mission tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read mission: %w", err)
			}
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			req := &mission.LoadMissionRequest{Name: name, Mission: data}
			return c.missionRun(cmd, func(s *robotrpc.Session) (any, error) {
				ctx := cmd.Context()
				var (
					resp *mission.LoadMissionResponse
					err  error
				)
				switch mode {
				case "unary":
					resp, err = s.Mission.LoadMission(ctx, req, resources...)
				case "chunks":
					resp, err = s.Mission.LoadMissionAsChunks(ctx, req, resources...)
				case "chunks2":
					resp, err = s.Mission.LoadMissionAsChunks2(ctx, req, resources...)
				default:
					return nil, fmt.Errorf("unknown load mode %q (unary, chunks, chunks2)", mode)
				}
				if resp == nil {
					return nil, err
				}
				return loadView{
					Status:      resp.Status.String(),
					Info:        infoViewOf(resp.Info),
					FailedNodes: resp.FailedNodes,
					Leases:      resultViews(resp.LeaseUseResults),
				}, err
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "mission name (default file name)")
	cmd.Flags().StringVar(&mode, "mode", "chunks", "transfer mode: unary, chunks or chunks2")
	cmd.Flags().StringSliceVarP(&resources, "resource", "r", nil, "resources to present leases for (default body)")
	return cmd
}

func newMissionPlayCommand(c *cli) *cobra.Command {
	var (
		pauseAfter time.Duration
		resources  []string
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play the loaded mission",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &mission.PlayMissionRequest{PauseTimeUnixNano: pauseAt(pauseAfter)}
			return c.missionRun(cmd, func(s *robotrpc.Session) (any, error) {
				resp, err := s.Mission.PlayMission(cmd.Context(), req, resources...)
				if resp == nil {
					return nil, err
				}
				return statusView{Status: resp.Status.String(), Leases: resultViews(resp.LeaseUseResults)}, err
			})
		},
	}
	cmd.Flags().DurationVar(&pauseAfter, "pause-after", 0, "pause automatically unless played again within this duration")
	cmd.Flags().StringSliceVarP(&resources, "resource", "r", nil, "resources to present leases for (default body)")
	return cmd
}

func newMissionPauseCommand(c *cli) *cobra.Command {
	var resource string
	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause the running mission",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.missionRun(cmd, func(s *robotrpc.Session) (any, error) {
				resp, err := s.Mission.PauseMission(cmd.Context(), &mission.PauseMissionRequest{}, resource)
				if resp == nil {
					return nil, err
				}
				view := statusView{Status: resp.Status.String()}
				if resp.LeaseUseResult != nil {
					view.Leases = resultViews([]api.LeaseUseResult{*resp.LeaseUseResult})
				}
				return view, err
			})
		},
	}
	cmd.Flags().StringVarP(&resource, "resource", "r", mission.DefaultResource, "resource to present a lease for")
	return cmd
}

func newMissionRestartCommand(c *cli) *cobra.Command {
	var (
		pauseAfter time.Duration
		resources  []string
	)
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the loaded mission from the beginning",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &mission.RestartMissionRequest{PauseTimeUnixNano: pauseAt(pauseAfter)}
			return c.missionRun(cmd, func(s *robotrpc.Session) (any, error) {
				resp, err := s.Mission.RestartMission(cmd.Context(), req, resources...)
				if resp == nil {
					return nil, err
				}
				return statusView{Status: resp.Status.String(), Leases: resultViews(resp.LeaseUseResults)}, err
			})
		},
	}
	cmd.Flags().DurationVar(&pauseAfter, "pause-after", 0, "pause automatically unless played within this duration")
	cmd.Flags().StringSliceVarP(&resources, "resource", "r", nil, "resources to present leases for (default body)")
	return cmd
}

func newMissionStateCommand(c *cli) *cobra.Command {
	var history int64
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show the mission state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.missionRun(cmd, func(s *robotrpc.Session) (any, error) {
				resp, err := s.Mission.GetState(cmd.Context(), &mission.GetStateRequest{HistoryPastTicks: history})
				if err != nil {
					return nil, err
				}
				view := stateView{State: resp.State.String(), Tick: resp.TickCounter, Error: resp.Error}
				for _, q := range resp.Questions {
					qv := questionView{ID: q.ID, Source: q.Source, Text: q.Text}
					for _, o := range q.Options {
						qv.Options = append(qv.Options, fmt.Sprintf("%d: %s", o.Answer, o.Text))
					}
					view.Questions = append(view.Questions, qv)
				}
				return view, nil
			})
		},
	}
	cmd.Flags().Int64Var(&history, "history", 0, "past ticks of node history to request")
	return cmd
}

func newMissionInfoCommand(c *cli) *cobra.Command {
	var chunked bool
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Describe the loaded mission",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.missionRun(cmd, func(s *robotrpc.Session) (any, error) {
				get := s.Mission.GetInfo
				if chunked {
					get = s.Mission.GetInfoAsChunks
				}
				resp, err := get(cmd.Context())
				if err != nil {
					return nil, err
				}
				if resp.Info == nil {
					return map[string]string{"mission": "none"}, nil
				}
				return infoViewOf(resp.Info), nil
			})
		},
	}
	cmd.Flags().BoolVar(&chunked, "chunked", false, "receive the answer as a chunk stream")
	return cmd
}

func newMissionGetCommand(c *cli) *cobra.Command {
	var chunked bool
	cmd := &cobra.Command{
		Use:   "get [out-file]",
		Short: "Fetch the loaded mission tree",
		Long:  "Fetch the loaded mission tree and write it to out-file, or stdout when omitted or \"-\".",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, cleanup, err := c.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			get := sess.Mission.GetMission
			if chunked {
				get = sess.Mission.GetMissionAsChunks
			}
			resp, err := get(cmd.Context(), &mission.GetMissionRequest{})
			if err != nil {
				return err
			}
			if len(resp.Mission) == 0 {
				return fmt.Errorf("no mission loaded")
			}
			out, closeOut, err := openOutput(cmd, argAt(args, 0))
			if err != nil {
				return err
			}
			if _, err := out.Write(resp.Mission); err != nil {
				_ = closeOut()
				return fmt.Errorf("write mission: %w", err)
			}
			return closeOut()
		},
	}
	cmd.Flags().BoolVar(&chunked, "chunked", false, "receive the tree as a chunk stream")
	return cmd
}

func newMissionAnswerCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "answer <question-id> <code>",
		Short: "Answer a question raised by the running mission",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid question id %q", args[0])
			}
			code, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid answer code %q", args[1])
			}
			return c.missionRun(cmd, func(s *robotrpc.Session) (any, error) {
				resp, err := s.Mission.AnswerQuestion(cmd.Context(), &mission.AnswerQuestionRequest{QuestionID: id, Code: code})
				if resp == nil {
					return nil, err
				}
				return statusView{Status: resp.Status.String()}, err
			})
		},
	}
}

func pauseAt(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return time.Now().Add(d).UnixNano()
}

type leaseView struct {
	Status    string `yaml:"status"`
	Owner     string `yaml:"owner,omitempty"`
	Attempted string `yaml:"attempted,omitempty"`
	Latest    string `yaml:"latest,omitempty"`
}

type statusView struct {
	Status string      `yaml:"status"`
	Leases []leaseView `yaml:"leases,omitempty"`
}

type infoView struct {
	ID    int64  `yaml:"id"`
	Name  string `yaml:"name"`
	Nodes int64  `yaml:"nodes"`
}

type loadView struct {
	Status      string      `yaml:"status"`
	Info        *infoView   `yaml:"info,omitempty"`
	FailedNodes []string    `yaml:"failed_nodes,omitempty"`
	Leases      []leaseView `yaml:"leases,omitempty"`
}

type stateView struct {
	State     string         `yaml:"state"`
	Tick      int64          `yaml:"tick"`
	Error     string         `yaml:"error,omitempty"`
	Questions []questionView `yaml:"questions,omitempty"`
}

type questionView struct {
	ID      int64    `yaml:"id"`
	Source  string   `yaml:"source,omitempty"`
	Text    string   `yaml:"text"`
	Options []string `yaml:"options,flow"`
}

func infoViewOf(info *mission.Info) *infoView {
	if info == nil {
		return nil
	}
	return &infoView{ID: info.ID, Name: info.Name, Nodes: info.NodeCount}
}

func resultViews(results []api.LeaseUseResult) []leaseView {
	out := make([]leaseView, 0, len(results))
	for _, r := range results {
		v := leaseView{Status: r.Status.String(), Owner: r.Owner}
		if r.AttemptedLease != nil {
			v.Attempted = r.AttemptedLease.Resource + "@" + formatSequence(r.AttemptedLease.Sequence)
		}
		if r.LatestKnownLease != nil {
			v.Latest = r.LatestKnownLease.Resource + "@" + formatSequence(r.LatestKnownLease.Sequence)
		}
		out = append(out, v)
	}
	return out
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
