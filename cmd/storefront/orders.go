package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/orders"
)

func ordersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Administer orders",
	}
	cmd.AddCommand(ordersListCmd(), ordersStatusCmd(), ordersDeleteCmd())
	return cmd
}

// withOrders runs fn against the order service backed by MongoDB.
func withOrders(cmd *cobra.Command, fn func(s *checkout.Service) error) error {
	ctx := cmd.Context()
	db, docs, err := connectDocstore(ctx)
	if err != nil {
		return err
	}
	defer db.Client().Disconnect(ctx)

	publisher := newPublisher()
	defer publisher.Close()

	return fn(checkout.NewService(orders.NewRepository(docs, logger), publisher, logger))
}

func ordersListCmd() *cobra.Command {
	var (
		filter string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders, newest first",
		Example: `  storefront orders list --filter 'status == "problem"'
  storefront orders list --filter 'total > 500 && created_at > now() - duration("24h")'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var f *orders.Filter
			if filter != "" {
				var err error
				if f, err = orders.CompileFilter(filter); err != nil {
					return err
				}
			}

			return withOrders(cmd, func(s *checkout.Service) error {
				list, err := s.ListOrders(cmd.Context())
				if err != nil {
					return err
				}
				if f != nil {
					if list, err = f.Apply(list); err != nil {
						return err
					}
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(list)
				}
				printOrders(cmd, list)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "expr filter over id, user_id, status, total, items, delivery, payment, recipient, has_note, created_at")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print orders as JSON")
	return cmd
}

func printOrders(cmd *cobra.Command, list []*domain.Order) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tUSER\tSTATUS\tTOTAL\tDELIVERY")
	for _, o := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\n",
			o.ID, o.CreatedAt.Format("2006-01-02 15:04"), o.UserID, o.Status, o.TotalPrice, o.Info.Delivery.Method)
	}
	w.Flush()
}

func ordersStatusCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "status <order-id> <pending|shipped|delivered|problem>",
		Short: "Change an order's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var notePtr *string
			if cmd.Flags().Changed("note") {
				notePtr = &note
			}
			return withOrders(cmd, func(s *checkout.Service) error {
				o, err := s.UpdateStatus(cmd.Context(), args[0], domain.OrderStatus(args[1]), notePtr)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "order %s is now %s\n", o.ID, o.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "note shown with the order, usually for problem orders")
	return cmd
}

func ordersDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <order-id>",
		Short: "Delete an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrders(cmd, func(s *checkout.Service) error {
				if err := s.DeleteOrder(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "order %s deleted\n", args[0])
				return nil
			})
		},
	}
}
