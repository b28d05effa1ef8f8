package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Tollgate/internal/limiter"
)

type limiterOptions struct {
	algorithm      string
	cost           time.Duration
	grace          time.Duration
	capacity       int
	refillAmount   int
	refillInterval time.Duration
	denyWait       time.Duration
}

func (o *limiterOptions) addFlags(cmd *cobra.Command) {
	def := limiter.DefaultConfig()
	cmd.Flags().StringVar(&o.algorithm, "algorithm", string(def.Algorithm), "rate limiting algorithm (leaky_bucket_grace, token_bucket_alarm)")
	cmd.Flags().DurationVar(&o.cost, "cost", def.Cost, "cursor advance per request (leaky_bucket_grace)")
	cmd.Flags().DurationVar(&o.grace, "grace", def.Grace, "tolerance before a request is refused (leaky_bucket_grace)")
	cmd.Flags().IntVar(&o.capacity, "capacity", def.Capacity, "bucket capacity (token_bucket_alarm)")
	cmd.Flags().IntVar(&o.refillAmount, "refill-amount", def.RefillAmount, "tokens added per refill (token_bucket_alarm)")
	cmd.Flags().DurationVar(&o.refillInterval, "refill-interval", def.RefillInterval, "time between refills (token_bucket_alarm)")
	cmd.Flags().DurationVar(&o.denyWait, "deny-wait", 0, "wait reported on refusal, 0 = refill interval (token_bucket_alarm)")
}

// apply overrides cfg with every flag the user set explicitly.
func (o *limiterOptions) apply(cmd *cobra.Command, cfg *limiter.Config) {
	if cmd.Flags().Changed("algorithm") {
		cfg.Algorithm = limiter.Algorithm(o.algorithm)
	}
	if cmd.Flags().Changed("cost") {
		cfg.Cost = o.cost
	}
	if cmd.Flags().Changed("grace") {
		cfg.Grace = o.grace
	}
	if cmd.Flags().Changed("capacity") {
		cfg.Capacity = o.capacity
	}
	if cmd.Flags().Changed("refill-amount") {
		cfg.RefillAmount = o.refillAmount
	}
	if cmd.Flags().Changed("refill-interval") {
		cfg.RefillInterval = o.refillInterval
	}
	if cmd.Flags().Changed("deny-wait") {
		cfg.DenyWait = o.denyWait
	}
}
