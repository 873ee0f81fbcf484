package server

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/refinelab/modeldash/internal/kb"
	"github.com/refinelab/modeldash/internal/models"
)

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", kb.ErrInvalidArgument, name)
	}
	return id, nil
}

// handleRAGListDatasets returns the dataset ids in a job's knowledge base.
// Ids are rendered as strings to match the dashboard's JSON conventions.
func (s *Server) handleRAGListDatasets(c *gin.Context) {
	jobID, err := pathID(c, "job_id")
	if err != nil {
		respondDomainError(c, err)
		return
	}

	ids, err := s.kb.ListDatasets(c.Request.Context(), jobID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatInt(id, 10)
	}
	respondOK(c, out)
}

// handleRAGListCollections returns the collection names backing a job's
// knowledge base.
func (s *Server) handleRAGListCollections(c *gin.Context) {
	jobID, err := pathID(c, "job_id")
	if err != nil {
		respondDomainError(c, err)
		return
	}

	names, err := s.kb.ListCollections(c.Request.Context(), jobID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	respondOK(c, names)
}

type ragIngestRequest struct {
	// Samples may be supplied inline. When absent, the dataset's stored
	// samples are used.
	Samples []models.Sample `json:"samples"`
}

type ragIngestResponse struct {
	JobID      int64  `json:"job_id"`
	DatasetID  int64  `json:"dataset_id"`
	Collection string `json:"collection"`
	Written    int    `json:"written"`
}

// handleRAGIngest ingests a dataset into a job's knowledge base.
func (s *Server) handleRAGIngest(c *gin.Context) {
	jobID, err := pathID(c, "job_id")
	if err != nil {
		respondDomainError(c, err)
		return
	}
	datasetID, err := pathID(c, "dataset_id")
	if err != nil {
		respondDomainError(c, err)
		return
	}

	var req ragIngestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, 400, "invalid_body", err)
			return
		}
	}

	samples := req.Samples
	if len(samples) == 0 {
		ds, err := s.db.GetDataset(c.Request.Context(), datasetID)
		if err != nil {
			respondDomainError(c, err)
			return
		}
		samples = ds.Samples
	}

	written, err := s.kb.Ingest(c.Request.Context(), jobID, datasetID, samples)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	collection, _ := kb.CollectionName(jobID, datasetID)
	respondOK(c, ragIngestResponse{
		JobID:      jobID,
		DatasetID:  datasetID,
		Collection: collection,
		Written:    written,
	})
}

// handleRAGDeleteDataset removes a dataset from a job's knowledge base.
func (s *Server) handleRAGDeleteDataset(c *gin.Context) {
	jobID, err := pathID(c, "job_id")
	if err != nil {
		respondDomainError(c, err)
		return
	}
	datasetID, err := pathID(c, "dataset_id")
	if err != nil {
		respondDomainError(c, err)
		return
	}

	if err := s.kb.DeleteDataset(c.Request.Context(), jobID, datasetID); err != nil {
		respondDomainError(c, err)
		return
	}
	respondOK(c, gin.H{"deleted": true, "job_id": jobID, "dataset_id": datasetID})
}

type ragQueryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// handleRAGQuery runs a semantic query over a job's knowledge base.
func (s *Server) handleRAGQuery(c *gin.Context) {
	jobID, err := pathID(c, "job_id")
	if err != nil {
		respondDomainError(c, err)
		return
	}

	var req ragQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, 400, "invalid_body", err)
		return
	}
	if req.Query == "" {
		respondError(c, 400, "invalid_body", fmt.Errorf("query is required"))
		return
	}

	results, err := s.kb.QueryJob(c.Request.Context(), jobID, req.Query, req.TopK)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	if results == nil {
		results = []kb.QueryResult{}
	}
	respondOK(c, results)
}
