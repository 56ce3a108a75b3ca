package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/Rendaw/bizast/internal/identity"
	"github.com/Rendaw/bizast/internal/record"
)

var publishVersion int64
var publishAutoVersion bool

var publishCmd = &cobra.Command{
	Use:   "publish <name> <message>",
	Short: "sign and publish a record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, message := args[0], args[1]

		id, err := identity.LoadOrGenerate(keyPath)
		if err != nil {
			return fmt.Errorf("load identity: %w", err)
		}

		version := publishVersion
		if publishAutoVersion {
			fingerprint := record.Fingerprint(id.Public)
			recordKey := record.RecordKey(name, fingerprint)
			if existing, err := fetchExisting(recordKey); err == nil {
				version = existing.Version + 1
			}
		}

		rec := &record.Record{
			Name:      name,
			Message:   message,
			Version:   version,
			Key:       hex.EncodeToString(id.Public),
			Signature: record.Sign(id.Private, name, message, version),
		}

		body, err := record.Encode(rec)
		if err != nil {
			return err
		}

		resp, err := http.Post(gatewayAddr+"/"+mustRecordKey(rec), "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("post to gateway: %w", err)
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("gateway rejected publish (%d): %s", resp.StatusCode, string(respBody))
		}

		fmt.Printf("published %s at version %d\n", mustRecordKey(rec), version)
		return nil
	},
}

func init() {
	publishCmd.Flags().Int64Var(&publishVersion, "version", 0, "record version to publish")
	publishCmd.Flags().BoolVar(&publishAutoVersion, "auto-version", true, "fetch the current version and publish one higher")
}

func mustRecordKey(rec *record.Record) string {
	key, err := rec.RecordKey()
	if err != nil {
		return rec.Name
	}
	return key
}

func fetchExisting(recordKey string) (*record.Record, error) {
	req, err := http.NewRequest(http.MethodGet, gatewayAddr+"/"+recordKey, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("no existing record (status %d)", resp.StatusCode)
	}

	var rec record.Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
