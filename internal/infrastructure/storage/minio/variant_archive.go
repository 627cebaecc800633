package minio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strconv"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/keyip-combinator/internal/config"
	"github.com/turtacn/keyip-combinator/internal/domain/enumeration"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyip-combinator/pkg/errors"
	"github.com/turtacn/keyip-combinator/pkg/types/common"
)

const (
	contentTypeJSONL = "application/x-ndjson"
	maxLineBytes     = 16 << 20
)

// variantLine is one line of an archive object.
type variantLine struct {
	RunID      string `json:"run_id"`
	Index      int    `json:"index"`
	SMILES     string `json:"smiles"`
	Sites      []int  `json:"sites"`
	Assignment []int  `json:"assignment"`
}

// VariantArchive writes each run as a JSON Lines object named
// <prefix><run-id>.jsonl.  Rewriting a run replaces its object.
type VariantArchive struct {
	client *Client
	logger logging.Logger
}

var _ enumeration.VariantArchive = (*VariantArchive)(nil)

func NewVariantArchive(client *Client, log logging.Logger) *VariantArchive {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &VariantArchive{client: client, logger: log}
}

func (a *VariantArchive) Name() string { return config.SinkMinIO }

// ObjectKey is the object name for a run.
func (a *VariantArchive) ObjectKey(runID common.ID) string {
	return a.client.Prefix() + runID.String() + ".jsonl"
}

func (a *VariantArchive) Write(ctx context.Context, run *enumeration.Run, variants []*enumeration.Variant) error {
	if err := run.Validate(); err != nil {
		return err
	}
	api, err := a.client.API()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, v := range variants {
		line := variantLine{
			RunID:      run.ID.String(),
			Index:      v.Index,
			SMILES:     v.SMILES,
			Sites:      v.Sites,
			Assignment: v.Assignment,
		}
		if err := enc.Encode(&line); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode variant")
		}
	}

	key := a.ObjectKey(run.ID)
	info, err := api.PutObject(ctx, a.client.Bucket(), key, bytes.NewReader(buf.Bytes()), int64(buf.Len()),
		minio.PutObjectOptions{
			ContentType: contentTypeJSONL,
			UserMetadata: map[string]string{
				"run-id":        run.ID.String(),
				"mode":          run.Mode,
				"variant-count": strconv.Itoa(len(variants)),
			},
		})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeObjectUploadFailed, "failed to upload run archive").
			WithDetail("key=" + key)
	}

	a.logger.Debug("run archived",
		logging.String(logging.FieldRunID, run.ID.String()),
		logging.String("key", key),
		logging.Int64("bytes", info.Size))
	return nil
}

// ReadVariants loads an archived run in the order it was written.  A missing
// object is a NotFound error.
func (a *VariantArchive) ReadVariants(ctx context.Context, runID common.ID) ([]*enumeration.Variant, error) {
	if err := runID.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParam, "invalid run id")
	}
	api, err := a.client.API()
	if err != nil {
		return nil, err
	}

	key := a.ObjectKey(runID)
	rc, err := api.GetObject(ctx, a.client.Bucket(), key, minio.GetObjectOptions{})
	if err != nil {
		return nil, a.readError(err, key)
	}
	defer rc.Close()

	var out []*enumeration.Variant
	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var line variantLine
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "corrupt run archive").
				WithDetail("key=" + key)
		}
		out = append(out, &enumeration.Variant{
			RunID:      runID,
			Index:      line.Index,
			SMILES:     line.SMILES,
			Sites:      line.Sites,
			Assignment: line.Assignment,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, a.readError(err, key)
	}
	return out, nil
}

// Delete removes a run's archive.  Removing a missing object succeeds.
func (a *VariantArchive) Delete(ctx context.Context, runID common.ID) error {
	if err := runID.Validate(); err != nil {
		return errors.Wrap(err, errors.CodeInvalidParam, "invalid run id")
	}
	api, err := a.client.API()
	if err != nil {
		return err
	}
	key := a.ObjectKey(runID)
	if err := api.RemoveObject(ctx, a.client.Bucket(), key, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeObjectUploadFailed, "failed to delete run archive").
			WithDetail("key=" + key)
	}
	return nil
}

// readError maps S3 errors.  minio reports a missing key either from
// GetObject or from the first Read.
func (a *VariantArchive) readError(err error, key string) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return errors.NotFound("run archive not found").WithDetail("key=" + key)
	}
	return errors.Wrap(err, errors.ErrCodeSinkUnavailable, "failed to read run archive").
		WithDetail("key=" + key)
}

//Personal.AI order the ending
