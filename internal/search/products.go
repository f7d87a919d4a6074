// Package search indexes products in Elasticsearch.
package search

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esapi"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/angkor-mart/storefront/internal/domain/product"
)

var _ product.Index = (*ProductIndex)(nil)

// ProductIndex implements product.Index on an Elasticsearch index.
type ProductIndex struct {
	es    *elasticsearch.Client
	index string
}

// NewProductIndex returns a ProductIndex writing to the named index.
func NewProductIndex(es *elasticsearch.Client, index string) *ProductIndex {
	return &ProductIndex{es: es, index: index}
}

// NewClient connects to Elasticsearch and checks that it answers.
func NewClient(ctx context.Context, addresses []string, username, password string) (*elasticsearch.Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
		Username:  username,
		Password:  password,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create client")
	}

	res, err := client.Info(client.Info.WithContext(ctx))
	if err != nil {
		return nil, errors.Wrap(err, "info")
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return nil, responseError("info", res)
	}
	return client, nil
}

// EnsureIndex creates the index with its mapping when it does not exist and
// reports whether it did, so the caller can backfill documents.
func (x *ProductIndex) EnsureIndex(ctx context.Context) (bool, error) {
	res, err := x.es.Indices.Exists([]string{x.index}, x.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, errors.Wrap(err, "check index")
	}
	_ = res.Body.Close()
	if res.StatusCode == 200 {
		return false, nil
	}

	res, err = x.es.Indices.Create(x.index,
		x.es.Indices.Create.WithContext(ctx),
		x.es.Indices.Create.WithBody(bytes.NewReader(mapping())),
	)
	if err != nil {
		return false, errors.Wrap(err, "create index")
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		if strings.Contains(res.String(), "resource_already_exists_exception") {
			return false, nil
		}
		return false, responseError("create index", res)
	}
	return true, nil
}

// Ping checks that the cluster answers.
func (x *ProductIndex) Ping(ctx context.Context) error {
	res, err := x.es.Ping(x.es.Ping.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, "ping")
	}
	_ = res.Body.Close()
	if res.IsError() {
		return responseError("ping", res)
	}
	return nil
}

// Index upserts the search document of p.
func (x *ProductIndex) Index(ctx context.Context, p *product.Product) error {
	res, err := x.es.Index(x.index, bytes.NewReader(document(p)),
		x.es.Index.WithContext(ctx),
		x.es.Index.WithDocumentID(p.ID),
	)
	if err != nil {
		return errors.Wrap(err, "index product")
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return responseError("index product", res)
	}
	return nil
}

// Remove deletes the search document of a product. Missing documents are
// not an error.
func (x *ProductIndex) Remove(ctx context.Context, id string) error {
	res, err := x.es.Delete(x.index, id, x.es.Delete.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, "delete product")
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() && res.StatusCode != 404 {
		return responseError("delete product", res)
	}
	return nil
}

// Search returns the IDs of products matching query in either language,
// ordered by relevance.
func (x *ProductIndex) Search(ctx context.Context, query string, limit, offset int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	res, err := x.es.Search(
		x.es.Search.WithContext(ctx),
		x.es.Search.WithIndex(x.index),
		x.es.Search.WithBody(bytes.NewReader(searchBody(query, limit, offset))),
	)
	if err != nil {
		return nil, errors.Wrap(err, "search")
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return nil, responseError("search", res)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read search response")
	}
	return hitIDs(body)
}

func mapping() []byte {
	var e jx.Encoder
	text := func(name string) func(e *jx.Encoder) {
		return func(e *jx.Encoder) {
			e.Field(name, func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) { e.Field("type", func(e *jx.Encoder) { e.Str("text") }) })
			})
		}
	}
	keyword := func(name string) func(e *jx.Encoder) {
		return func(e *jx.Encoder) {
			e.Field(name, func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) { e.Field("type", func(e *jx.Encoder) { e.Str("keyword") }) })
			})
		}
	}
	e.Obj(func(e *jx.Encoder) {
		e.Field("mappings", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("properties", func(e *jx.Encoder) {
					e.Obj(func(e *jx.Encoder) {
						text("nameEn")(e)
						text("nameKm")(e)
						text("descriptionEn")(e)
						text("descriptionKm")(e)
						keyword("slug")(e)
						keyword("categoryId")(e)
						e.Field("onSale", func(e *jx.Encoder) {
							e.Obj(func(e *jx.Encoder) { e.Field("type", func(e *jx.Encoder) { e.Str("boolean") }) })
						})
					})
				})
			})
		})
	})
	return e.Bytes()
}

func document(p *product.Product) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("nameEn", func(e *jx.Encoder) { e.Str(p.NameEN) })
		e.Field("nameKm", func(e *jx.Encoder) { e.Str(p.NameKM) })
		e.Field("descriptionEn", func(e *jx.Encoder) { e.Str(p.DescriptionEN) })
		e.Field("descriptionKm", func(e *jx.Encoder) { e.Str(p.DescriptionKM) })
		e.Field("slug", func(e *jx.Encoder) { e.Str(p.Slug) })
		e.Field("categoryId", func(e *jx.Encoder) { e.Str(p.CategoryID.String()) })
		e.Field("onSale", func(e *jx.Encoder) { e.Bool(p.OnSale) })
	})
	return e.Bytes()
}

func searchBody(query string, limit, offset int) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("from", func(e *jx.Encoder) { e.Int(max(offset, 0)) })
		e.Field("size", func(e *jx.Encoder) { e.Int(limit) })
		e.Field("_source", func(e *jx.Encoder) { e.Bool(false) })
		e.Field("query", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("multi_match", func(e *jx.Encoder) {
					e.Obj(func(e *jx.Encoder) {
						e.Field("query", func(e *jx.Encoder) { e.Str(query) })
						e.Field("fields", func(e *jx.Encoder) {
							e.Arr(func(e *jx.Encoder) {
								for _, f := range []string{"nameEn^2", "nameKm^2", "descriptionEn", "descriptionKm"} {
									e.Str(f)
								}
							})
						})
						e.Field("fuzziness", func(e *jx.Encoder) { e.Str("AUTO") })
					})
				})
			})
		})
	})
	return e.Bytes()
}

// hitIDs extracts hits.hits[]._id from a search response.
func hitIDs(body []byte) ([]string, error) {
	ids := []string{}
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		if key != "hits" {
			return d.Skip()
		}
		return d.Obj(func(d *jx.Decoder, key string) error {
			if key != "hits" {
				return d.Skip()
			}
			return d.Arr(func(d *jx.Decoder) error {
				return d.Obj(func(d *jx.Decoder, key string) error {
					if key != "_id" {
						return d.Skip()
					}
					id, err := d.Str()
					if err != nil {
						return err
					}
					ids = append(ids, id)
					return nil
				})
			})
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode search response")
	}
	return ids, nil
}

func responseError(op string, res *esapi.Response) error {
	return errors.Errorf("%s: elasticsearch returned %s", op, res.Status())
}
