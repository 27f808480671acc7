package main

import (
	"fmt"
	"time"

	"github.com/natserract/zcrm/pkg/zohocrm"
	"github.com/spf13/cobra"
)

var (
	queryCriteria      string
	queryModifiedSince string
	queryParams        []string

	upsertFile     string
	upsertCriteria string
)

var usersCmd = &cobra.Command{
	Use:   "users [type]",
	Short: "List CRM users",
	Long: `List CRM users of a type such as AllUsers (default), ActiveUsers or
CurrentUser.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userType := ""
		if len(args) == 1 {
			userType = args[0]
		}
		users, err := client.GetUsers(cmd.Context(), userType)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), users)
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <module>",
	Short: "List or search records of a module",
	Long: `Query fetches every page of a module. With --criteria the search
endpoint is used.

Example:
  zcrm query Accounts
  zcrm query Accounts --criteria '(Account_Name:equals:Acme)'
  zcrm query Deals --modified-since 2024-01-01T00:00:00+00:00 --param fields=Deal_Name`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseParams(queryParams)
		if err != nil {
			return err
		}

		opts := zohocrm.QueryOptions{Criteria: queryCriteria, Params: params}
		if queryModifiedSince != "" {
			opts.ModifiedSince, err = zohocrm.ParseTime(queryModifiedSince)
			if err != nil {
				return fmt.Errorf("invalid --modified-since: %w", err)
			}
		}

		records, err := client.Collect(cmd.Context(), args[0], opts)
		if err != nil {
			return err
		}
		if records == nil {
			records = []zohocrm.Record{}
		}
		return printJSON(cmd.OutOrStdout(), records)
	},
}

var getCmd = &cobra.Command{
	Use:   "get <module> <id>",
	Short: "Fetch one record by id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		record, err := client.GetByID(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), record)
	},
}

var relatedCmd = &cobra.Command{
	Use:   "related <parent-module> <id> <child-module>",
	Short: "Fetch the related records of a parent record",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, records, err := client.GetRelatedRecords(cmd.Context(), args[0], args[2], args[1], time.Time{})
		if err != nil {
			return err
		}
		if records == nil {
			records = []zohocrm.Record{}
		}
		return printJSON(cmd.OutOrStdout(), records)
	},
}

var upsertCmd = &cobra.Command{
	Use:   "upsert <module>",
	Short: "Update the record matching criteria, or insert it",
	Long: `Upsert reads a record (or a {"data": [...]} payload) from --file. With
--criteria the first matching record is updated and the payload must hold a
single record; without it the records are always inserted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := readPayload(upsertFile)
		if err != nil {
			return err
		}
		result, err := client.Upsert(cmd.Context(), args[0], payload, upsertCriteria)
		// A landed write comes back with its ids even when re-reading it failed.
		if result == nil {
			return err
		}
		if perr := printMutation(cmd.OutOrStdout(), result); perr != nil {
			return perr
		}
		return err
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <module> <id>",
	Short: "Delete one record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := client.Delete(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return printMutation(cmd.OutOrStdout(), result)
	},
}

var refreshTokenCmd = &cobra.Command{
	Use:   "refresh-token",
	Short: "Obtain and store a new access token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := client.RefreshToken(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"token_type": token.TokenType,
			"expires_in": token.ExpiresIn,
			"api_domain": token.APIDomain,
			"token_dir":  cfg.TokenDir,
		})
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryCriteria, "criteria", "", "search criteria, e.g. (Email:equals:a@example.com)")
	queryCmd.Flags().StringVar(&queryModifiedSince, "modified-since", "", "only records modified after this time")
	queryCmd.Flags().StringArrayVar(&queryParams, "param", nil, "extra query parameter as key=value (repeatable)")

	upsertCmd.Flags().StringVarP(&upsertFile, "file", "f", "", "JSON file with the record or payload")
	upsertCmd.Flags().StringVar(&upsertCriteria, "criteria", "", "criteria selecting the record to update")
	_ = upsertCmd.MarkFlagRequired("file")
}
