// Command auditctl 用于查询审计记录、跟踪审计事件以及生成 API Key 哈希。
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"sme-plug-go/internal/config"
	"sme-plug-go/internal/model"
	"sme-plug-go/internal/repository"
	"sme-plug-go/pkg/database"
	"sme-plug-go/pkg/events"
	"sme-plug-go/pkg/hash"
	"sme-plug-go/pkg/kafka"
	"sme-plug-go/pkg/log"
)

var (
	configPath string
	tenantID   string
	listPage   int
	listSize   int
	outputJSON bool
	fromStart  bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "auditctl",
		Short:         "SME-Plug 审计记录命令行工具",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "配置文件路径")

	list := &cobra.Command{
		Use:   "list",
		Short: "按时间倒序列出租户的审计摘要",
		RunE:  runList,
	}
	list.Flags().StringVarP(&tenantID, "tenant", "t", "", "租户 ID")
	list.Flags().IntVar(&listPage, "page", 1, "页码")
	list.Flags().IntVar(&listSize, "size", 20, "每页条数")
	list.Flags().BoolVar(&outputJSON, "json", false, "以 JSON 输出")
	_ = list.MarkFlagRequired("tenant")

	show := &cobra.Command{
		Use:   "show <queryId>",
		Short: "显示完整审计条目并校验摘要",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
	show.Flags().StringVarP(&tenantID, "tenant", "t", "", "租户 ID")
	_ = show.MarkFlagRequired("tenant")

	tail := &cobra.Command{
		Use:   "tail",
		Short: "跟踪 Kafka 上的审计事件",
		RunE:  runTail,
	}
	tail.Flags().BoolVar(&fromStart, "from-start", false, "从最早的消息开始消费")

	hashKey := &cobra.Command{
		Use:   "hash-key <key>",
		Short: "生成 auth.api_keys 使用的 bcrypt 哈希",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := hash.HashKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}

	root.AddCommand(list, show, tail, hashKey)
	return root
}

// openAuditRepository 按配置打开审计存储，返回关闭函数。
func openAuditRepository(cfg config.Config) (repository.AuditRepository, func(), error) {
	switch cfg.Audit.Backend {
	case "mysql":
		database.InitMySQL(cfg.Database.MySQL.DSN)
		return repository.NewAuditRepository(database.DB), func() {}, nil
	case "badger", "":
		if cfg.Audit.InMemory {
			return nil, nil, fmt.Errorf("内存模式的审计存储无法被其他进程读取")
		}
		db, err := database.OpenBadger(cfg.Audit.BadgerPath, false)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewBadgerAuditRepository(db), func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("未知的审计存储后端: %s", cfg.Audit.Backend)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	log.Init("warn", "console", "")
	return cfg, nil
}

func runList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	repo, closeFn, err := openAuditRepository(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	items, total, err := repo.List(cmd.Context(), tenantID, listPage, listSize)
	if err != nil {
		return err
	}
	if outputJSON {
		return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"items": items, "total": total})
	}
	printSummaries(cmd.OutOrStdout(), items, total)
	return nil
}

func printSummaries(w io.Writer, items []model.AuditSummary, total int64) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tQUERY ID\tPERSONA\tDECISION\tCITATIONS\tSCORE")
	for _, s := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.4f\n",
			s.Timestamp.Local().Format(time.DateTime), s.QueryID, s.PersonaID, s.Decision, s.CitationCount, s.HallucinationScore)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "共 %d 条\n", total)
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	repo, closeFn, err := openAuditRepository(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	entry, err := repo.Get(cmd.Context(), tenantID, args[0])
	if err != nil {
		return err
	}
	if err := writeJSON(cmd.OutOrStdout(), entry); err != nil {
		return err
	}
	if entry.Integrity != model.IntegrityOK {
		return fmt.Errorf("审计条目 %s 摘要校验失败", entry.QueryID)
	}
	return nil
}

func runTail(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	return kafka.StartConsumer(ctx, cfg.Kafka, fromStart, func(ev events.AuditEvent) error {
		reason := ""
		if ev.BlockReason != "" {
			reason = " (" + ev.BlockReason + ")"
		}
		fmt.Fprintf(out, "%s tenant=%s query=%s persona=%s decision=%s%s citations=%d score=%.4f\n",
			ev.Timestamp.Local().Format(time.RFC3339), ev.TenantID, ev.QueryID, ev.PersonaID, ev.Decision, reason, ev.CitationCount, ev.HallucinationScore)
		return nil
	})
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
