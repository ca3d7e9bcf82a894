// Package service 提供了业务逻辑层的实现。
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/elastic/go-elasticsearch/v8"

	"sme-plug-go/internal/model"
	"sme-plug-go/internal/pipeline"
	"sme-plug-go/pkg/embedding"
	"sme-plug-go/pkg/log"
)

const recallFactor = 30

// RetrievalService 在插件语料范围内执行混合检索。
type RetrievalService interface {
	pipeline.Retriever
}

type retrievalService struct {
	embeddingClient embedding.Client
	esClient        *elasticsearch.Client
	indexName       string
}

var _ RetrievalService = (*retrievalService)(nil)

// NewRetrievalService 创建一个新的 RetrievalService 实例。
func NewRetrievalService(embeddingClient embedding.Client, esClient *elasticsearch.Client, indexName string) RetrievalService {
	return &retrievalService{
		embeddingClient: embeddingClient,
		esClient:        esClient,
		indexName:       indexName,
	}
}

// Retrieve 执行 kNN 召回 + BM25 重排，返回按相关度降序、分数归一化到 [0,1] 的语料块。
func (s *retrievalService) Retrieve(ctx context.Context, query, pluginID string, topK int) ([]model.RetrievedChunk, error) {
	if topK <= 0 {
		topK = 5
	}
	log.Infof("[RetrievalService] 开始检索, plugin: %s, topK: %d", pluginID, topK)

	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, query)
	if err != nil {
		log.Errorf("[RetrievalService] 向量化查询失败: %v", err)
		return nil, fmt.Errorf("failed to create query embedding: %w", err)
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildHybridQuery(query, pluginID, queryVector, topK)); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.esClient.Search(
		s.esClient.Search.WithContext(ctx),
		s.esClient.Search.WithIndex(s.indexName),
		s.esClient.Search.WithBody(&buf),
	)
	if err != nil {
		log.Errorf("[RetrievalService] 向 Elasticsearch 发送搜索请求失败: %v", err)
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("[RetrievalService] Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.EsChunk `json:"_source"`
				Score  float64       `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		log.Errorf("[RetrievalService] 解析 Elasticsearch 响应失败: %v", err)
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	hits := esResponse.Hits.Hits
	chunks := make([]model.RetrievedChunk, 0, len(hits))
	if len(hits) == 0 {
		log.Infof("[RetrievalService] plugin %s 无命中结果", pluginID)
		return chunks, nil
	}

	maxScore := 0.0
	for _, h := range hits {
		maxScore = math.Max(maxScore, h.Score)
	}
	for _, h := range hits {
		chunks = append(chunks, model.RetrievedChunk{
			Filename:       h.Source.Filename,
			Page:           h.Source.Page,
			Section:        h.Source.Section,
			Title:          h.Source.Title,
			Text:           h.Source.Text,
			RelevanceScore: normalizeScore(h.Score, maxScore),
		})
	}
	log.Infof("[RetrievalService] 检索完成, 命中 %d 条, 最高分: %.4f", len(chunks), maxScore)
	return chunks, nil
}

// buildHybridQuery 构造 kNN + BM25 rescore 查询，kNN 与 BM25 都按 plugin_id 过滤。
func buildHybridQuery(query, pluginID string, vector []float32, topK int) map[string]interface{} {
	filter := map[string]interface{}{
		"term": map[string]interface{}{"plugin_id": pluginID},
	}
	return map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              topK * recallFactor,
			"num_candidates": topK * recallFactor,
			"filter":         filter,
		},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"should": map[string]interface{}{
					"match": map[string]interface{}{"text": query},
				},
				"filter": filter,
			},
		},
		"rescore": map[string]interface{}{
			"window_size": topK * recallFactor,
			"query": map[string]interface{}{
				"rescore_query": map[string]interface{}{
					"match": map[string]interface{}{
						"text": map[string]interface{}{
							"query": query,
						},
					},
				},
				"query_weight":         0.2,
				"rescore_query_weight": 1.0,
			},
		},
		"_source": map[string]interface{}{"excludes": []string{"vector"}},
		"size":    topK,
	}
}

func normalizeScore(score, maxScore float64) float64 {
	if maxScore <= 0 || score <= 0 {
		return 0
	}
	v := score / maxScore
	if v > 1 {
		v = 1
	}
	return math.Round(v*10000) / 10000
}
