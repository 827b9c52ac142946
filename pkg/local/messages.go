package local

var (
	ClassificationPlaceholder = NewSet(
		"No classification yet.",
		NewTrans(Rus, "Классификации пока нет."),
	)
	ClassificationInProgress = NewSet(
		"Classifying...",
		NewTrans(Rus, "Классифицирую..."),
	)
	ModelUnavailable = NewSet(
		"Failed to load model.",
		NewTrans(Rus, "Не удалось загрузить модель."),
	)
	ImageUndecodable = NewSet(
		"Unable to decode image.",
		NewTrans(Rus, "Не удалось прочитать изображение."),
	)
	NoClassification = NewSet(
		"Unable to classify image.",
		NewTrans(Rus, "Не удалось классифицировать изображение."),
	)
	ClassificationFailedFormat = NewSet(
		"Failed to perform classification: %v",
		NewTrans(Rus, "Ошибка классификации: %v"),
	)
	GenerationFailedFormat = NewSet(
		"Failed to get response: %v",
		NewTrans(Rus, "Не удалось получить ответ: %v"),
	)
	NoResponseText = NewSet(
		"No response text available.",
		NewTrans(Rus, "Ответ не содержит текста."),
	)
	ImageProcessingFailed = NewSet(
		"Failed to process image",
		NewTrans(Rus, "Не удалось обработать изображение"),
	)
	EmptyPrompt = NewSet(
		"Prompt is empty",
		NewTrans(Rus, "Пустой запрос"),
	)
)
