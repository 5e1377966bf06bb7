package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/metalsense/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a Temporal worker for sample assessment",
	Long:  "Hosts the assessment workflow and activity on worker.temporal.task_queue until interrupted.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		eng, err := initEngine()
		if err != nil {
			return err
		}

		tc := temporalConfig()
		c, err := worker.DialTemporal(tc)
		if err != nil {
			return err
		}
		defer c.Close()

		w := worker.NewTemporalWorker(c, tc.TaskQueue, &worker.Activities{Assessor: initAssessor(st, eng)})

		zap.L().Info("starting temporal worker",
			zap.String("host_port", tc.HostPort),
			zap.String("namespace", tc.Namespace),
			zap.String("task_queue", tc.TaskQueue),
		)

		interrupt := make(chan interface{})
		go func() {
			<-ctx.Done()
			close(interrupt)
		}()
		if err := w.Run(interrupt); err != nil {
			return eris.Wrap(err, "temporal worker")
		}

		zap.L().Info("temporal worker stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
