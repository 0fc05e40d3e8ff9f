package ingest

// Accepted header aliases per canonical field, English report names first,
// then the Portuguese (pt-BR) Google Ads UI names. Matching goes through
// NormalizeHeader, so case, accents and underscores do not matter.
var (
	aliasCampaignID   = []string{"campaign_id", "campaign id", "campaignid", "id da campanha", "id campanha"}
	aliasCampaignName = []string{"campaign_name", "campaign", "campaign name", "campanha", "nome da campanha"}

	aliasDay   = []string{"date", "day", "dia", "data"}
	aliasStart = []string{"date_range_start", "start", "start date", "start_date", "data inicial", "data de início", "início"}
	aliasEnd   = []string{"date_range_end", "end", "end date", "end_date", "data final", "data de término", "fim"}

	aliasImpressions     = []string{"impressions", "impr.", "impr", "impressões"}
	aliasClicks          = []string{"clicks", "cliques"}
	aliasCost            = []string{"cost", "custo", "spend", "gasto"}
	aliasConversions     = []string{"conversions", "conv.", "conversões"}
	aliasConversionValue = []string{"conversion_value", "conv. value", "conversion value", "valor conv.", "valor de conv.", "valor da conversão", "valor das conversões"}

	aliasSearchImpressionShare = []string{"search_impression_share", "search impr. share", "search impression share", "parcela de impr. de pesquisa", "parcela de impressões de pesquisa"}

	aliasStatus       = []string{"status", "campaign status", "status da campanha", "estado"}
	aliasChannelType  = []string{"channel_type", "advertising channel type", "campaign type", "tipo de campanha", "tipo de canal"}
	aliasBudgetAmount = []string{"budget_amount", "budget", "orçamento", "orçamento diário"}

	aliasAdGroupName  = []string{"ad_group_name", "ad group", "ad group name", "grupo de anúncios"}
	aliasKeywordText  = []string{"keyword_text", "keyword", "search keyword", "palavra-chave", "palavra chave", "termo de pesquisa"}
	aliasMatchType    = []string{"match_type", "match type", "search keyword match type", "tipo de correspondência"}
	aliasQualityScore = []string{"quality_score", "quality score", "índice de qualidade"}

	aliasAdID     = []string{"ad_id", "ad id", "id do anúncio"}
	aliasAdType   = []string{"ad_type", "ad type", "tipo de anúncio"}
	aliasHeadline = []string{"headline", "headline 1", "título", "título 1"}
	aliasFinalURL = []string{"final_url", "final url", "url final"}

	aliasAssetID          = []string{"asset_id", "asset id", "id do recurso"}
	aliasFieldType        = []string{"field_type", "asset field type", "field type", "tipo de campo"}
	aliasAssetType        = []string{"asset_type", "asset type", "tipo de recurso"}
	aliasAssetText        = []string{"asset_text", "asset", "text", "texto do recurso", "recurso"}
	aliasPerformanceLabel = []string{"performance_label", "performance label", "performance", "desempenho"}

	aliasItemID       = []string{"item_id", "item id", "offer id", "id do item"}
	aliasProductTitle = []string{"product_title", "product title", "title", "título do produto"}
	aliasBrand        = []string{"brand", "marca"}

	aliasCategoryLabel = []string{"category_label", "search category", "search term category", "category", "categoria"}
	aliasSearchVolume  = []string{"search_volume", "searches", "volume de pesquisa"}

	aliasAudienceName = []string{"audience_name", "audience", "audience segment", "segmento", "público", "nome do público"}
	aliasAudienceType = []string{"audience_type", "audience type", "tipo de público"}
)

// keywordHeaders mark a CSV as a keyword report for automatic routing.
var keywordHeaders = []string{"keyword", "keyword_text", "search keyword", "palavra-chave", "termo de pesquisa"}

// LooksLikeKeywordReport reports whether any header folds to a
// keyword-related column name.
func LooksLikeKeywordReport(headers []string) bool {
	want := make(map[string]struct{}, len(keywordHeaders))
	for _, h := range keywordHeaders {
		want[NormalizeHeader(h)] = struct{}{}
	}
	for _, h := range headers {
		if _, ok := want[NormalizeHeader(h)]; ok {
			return true
		}
	}
	return false
}
