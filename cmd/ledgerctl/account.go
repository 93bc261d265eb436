package main

import (
	"github.com/ruralpay/ledger/internal/models"
	"github.com/spf13/cobra"
)

var balanceCmd = &cobra.Command{
	Use:   "balance [account-id]",
	Short: "Print the committed balance of an account",
	Args:  cobra.ExactArgs(1),
	RunE:  runBalance,
}

var reverseCmd = &cobra.Command{
	Use:   "reverse [transfer-id]",
	Short: "Reverse an internal transfer inside the reversal window",
	Args:  cobra.ExactArgs(1),
	RunE:  runReverse,
}

var reverseReason string

func init() {
	reverseCmd.Flags().StringVarP(&reverseReason, "reason", "r", "", "Reason recorded with the reversal")
	_ = reverseCmd.MarkFlagRequired("reason")

	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(reverseCmd)
}

func runBalance(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	service, closeAudit := s.transferService()
	defer closeAudit(ctx)

	account, err := service.GetAccount(ctx, models.SystemPrincipal, args[0])
	if err != nil {
		return err
	}
	printAccount(cmd, account)
	return nil
}

func runReverse(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	service, closeAudit := s.transferService()
	defer closeAudit(ctx)

	result, err := service.ReverseTransfer(ctx, models.SystemPrincipal, models.ReverseTransferRequest{
		TransferID: args[0],
		Reason:     reverseReason,
	})
	if err != nil {
		return err
	}
	cmd.Printf("Transfer %s reversed by %s at %s\n",
		result.OriginalTransferID, result.ReversalTransferID, result.ReversedAt.Format("2006-01-02T15:04:05Z07:00"))
	return nil
}

func printAccount(cmd *cobra.Command, a *models.Account) {
	cmd.Printf("Account:   %s\n", a.ID)
	cmd.Printf("IBAN:      %s\n", a.IBAN)
	cmd.Printf("Status:    %s\n", a.Status)
	cmd.Printf("Balance:   %s\n", a.Balance)
	cmd.Printf("Overdraft: %s %s\n", a.OverdraftLimit.StringFixed(models.MoneyScale), a.Currency)
}
