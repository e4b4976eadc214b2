package casehub

import "github.com/multicare-dataset/website/internal/models"

// Selection is the harmonized result of applying Criteria: every article
// has at least one case and one image left, and every case has at least
// one image left. Rows keep dataset order.
type Selection struct {
	Articles []models.Article `json:"articles"`
	Cases    []models.Case    `json:"cases"`
	Images   []models.Image   `json:"images"`

	articles     map[string]int // article_id -> index in Articles
	cases        map[string]int // case_id -> index in Cases
	imagesByCase map[string][]int
}

// Harmonize drops rows whose related rows were filtered out of another
// table. Kept articles appear in all three tables; kept cases appear in
// both the case and image tables and belong to a kept article.
func Harmonize(articles []models.Article, cases []models.Case, images []models.Image) *Selection {
	caseArticles := make(map[string]struct{}, len(cases))
	caseIDs := make(map[string]struct{}, len(cases))
	for _, c := range cases {
		caseArticles[c.ArticleID] = struct{}{}
		caseIDs[c.CaseID] = struct{}{}
	}
	imageArticles := make(map[string]struct{}, len(images))
	imageCases := make(map[string]struct{}, len(images))
	for _, img := range images {
		imageArticles[img.ArticleID] = struct{}{}
		imageCases[img.CaseID] = struct{}{}
	}

	keepArticle := make(map[string]struct{})
	for _, a := range articles {
		if has(caseArticles, a.ArticleID) && has(imageArticles, a.ArticleID) {
			keepArticle[a.ArticleID] = struct{}{}
		}
	}
	keepCase := func(caseID, articleID string) bool {
		return has(caseIDs, caseID) && has(imageCases, caseID) && has(keepArticle, articleID)
	}

	s := &Selection{
		Articles:     []models.Article{},
		Cases:        []models.Case{},
		Images:       []models.Image{},
		articles:     make(map[string]int),
		cases:        make(map[string]int),
		imagesByCase: make(map[string][]int),
	}
	for _, a := range articles {
		if has(keepArticle, a.ArticleID) {
			s.articles[a.ArticleID] = len(s.Articles)
			s.Articles = append(s.Articles, a)
		}
	}
	for _, c := range cases {
		if keepCase(c.CaseID, c.ArticleID) {
			s.cases[c.CaseID] = len(s.Cases)
			s.Cases = append(s.Cases, c)
		}
	}
	for _, img := range images {
		if keepCase(img.CaseID, img.ArticleID) {
			s.imagesByCase[img.CaseID] = append(s.imagesByCase[img.CaseID], len(s.Images))
			s.Images = append(s.Images, img)
		}
	}
	return s
}

func has(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

// Article returns the selected article with the given id.
func (s *Selection) Article(id string) (models.Article, bool) {
	i, ok := s.articles[id]
	if !ok {
		return models.Article{}, false
	}
	return s.Articles[i], true
}

// Case returns the selected case with the given id.
func (s *Selection) Case(id string) (models.Case, bool) {
	i, ok := s.cases[id]
	if !ok {
		return models.Case{}, false
	}
	return s.Cases[i], true
}

// ImagesOf returns the selected images of a case.
func (s *Selection) ImagesOf(caseID string) []models.Image {
	idx := s.imagesByCase[caseID]
	out := make([]models.Image, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.Images[i])
	}
	return out
}
