package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bankrot-cli/internal/model"
)

var (
	verifySave bool
	verifyJSON bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify <lot-id>",
	Short: "Re-run debt verification for a cached lot",
	Long:  "Scores a cached lot through the four verification stages and prints the result. The cache is only updated with --save.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("verify"); err != nil {
			return err
		}
		lots, err := openCache(ctx)
		if err != nil {
			return err
		}
		defer lots.Close() //nolint:errcheck

		entry, ok := lots.Get(args[0])
		if !ok {
			return eris.Errorf("verify: lot %s not found", args[0])
		}

		ver, err := newVerifier(lots)
		if err != nil {
			return err
		}
		result, err := ver.Verify(ctx, entry.Lot)
		if err != nil {
			return eris.Wrapf(err, "verify: lot %s", args[0])
		}

		if verifyJSON {
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
		} else {
			renderVerification(cmd.OutOrStdout(), entry.Lot, result)
		}

		if !verifySave {
			return nil
		}
		entry.Verification = result
		entry.Lot.Status = model.LotStatusVerified
		entry.Lot.StatusReason = string(result.Verdict)
		entry.Lot.UpdatedAt = time.Now().UTC()
		if err := lots.Put(entry); err != nil {
			return err
		}
		if err := lots.Flush(ctx); err != nil {
			return err
		}
		zap.L().Info("verification saved", zap.String("lot_id", entry.Lot.ID), zap.String("verdict", string(result.Verdict)))
		return nil
	},
}

func init() {
	verifyCmd.Flags().BoolVar(&verifySave, "save", false, "store the result in the cache")
	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "print the result as JSON")
	rootCmd.AddCommand(verifyCmd)
}
