package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"deposit-reconciler/internal/model"
	"deposit-reconciler/internal/service/mq"
	"deposit-reconciler/pkg/config"
	"deposit-reconciler/pkg/database"
	"deposit-reconciler/pkg/logger"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var eventsGroup string

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "订阅入账事件并打印，用于排查下游消费",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Global
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var rdb *redis.Client
		if cfg.Redis.MQType != mq.TypeKafka {
			var err error
			rdb, err = database.ConnectRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				return err
			}
			defer rdb.Close()
		}

		host, _ := os.Hostname()
		consumer, err := mq.NewConsumer(cfg.Redis.MQType, rdb, cfg.Kafka.Brokers, eventsGroup, host, logger.Named("mq"))
		if err != nil {
			return err
		}
		defer consumer.Close()

		return consumer.Subscribe(ctx, model.TopicDepositCredited, func(msg *mq.Message) error {
			var ev model.DepositCreditedEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				logger.Warn("无法解析入账事件", zap.String("id", msg.ID), zap.Error(err))
				return nil
			}
			fmt.Printf("%s\t%s\t%s\tuser=%d\tamount=%s\t%s\n",
				msg.ID, ev.Network, ev.TxHash, ev.UserID, ev.Amount, ev.CreditedAt)
			return nil
		})
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsGroup, "group", "reconciler-ops", "消费者组")
	rootCmd.AddCommand(eventsCmd)
}
